package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Catalog       CatalogConfig
	Checkout      CheckoutConfig
	Admin         AdminConfig
	Stripe        StripeConfig
	Contact       ContactConfig
	GCP           GCPConfig
	GCS           GCSConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PLOMBEA_APP_ENV" required:"true"`
	Port         string `envconfig:"PLOMBEA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PLOMBEA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PLOMBEA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PLOMBEA_DB_DSN"`
	Driver string `envconfig:"PLOMBEA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PLOMBEA_DB_HOST"`
	LegacyPort     int    `envconfig:"PLOMBEA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PLOMBEA_DB_USER"`
	LegacyPassword string `envconfig:"PLOMBEA_DB_PASSWORD"`
	LegacyName     string `envconfig:"PLOMBEA_DB_NAME"`
	LegacySSLMode  string `envconfig:"PLOMBEA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PLOMBEA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PLOMBEA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PLOMBEA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PLOMBEA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PLOMBEA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PLOMBEA_REDIS_ADDR"`
	Password     string        `envconfig:"PLOMBEA_REDIS_PASSWORD"`
	DB           int           `envconfig:"PLOMBEA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PLOMBEA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PLOMBEA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PLOMBEA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PLOMBEA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PLOMBEA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"PLOMBEA_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"PLOMBEA_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"PLOMBEA_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"PLOMBEA_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"PLOMBEA_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"PLOMBEA_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"PLOMBEA_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"PLOMBEA_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"PLOMBEA_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"PLOMBEA_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"PLOMBEA_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"PLOMBEA_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"PLOMBEA_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"PLOMBEA_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"PLOMBEA_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PLOMBEA_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PLOMBEA_AUTO_MIGRATE" default:"false"`
}

type CatalogConfig struct {
	CacheTTL time.Duration `envconfig:"PLOMBEA_CATALOG_CACHE_TTL" default:"60s"`
}

type CheckoutConfig struct {
	SessionTTL      time.Duration `envconfig:"PLOMBEA_CHECKOUT_SESSION_TTL" default:"2h"`
	AddGuardTTL     time.Duration `envconfig:"PLOMBEA_CART_ADD_GUARD_TTL" default:"10s"`
	MergeMarkerTTL  time.Duration `envconfig:"PLOMBEA_CART_MERGE_MARKER_TTL" default:"24h"`
	DefaultCurrency string        `envconfig:"PLOMBEA_CHECKOUT_DEFAULT_CURRENCY" default:"EUR"`
}

// AdminConfig holds the admin email allow-list complementing the role field.
type AdminConfig struct {
	AllowedEmails []string `envconfig:"PLOMBEA_ADMIN_ALLOWED_EMAILS"`
}

type StripeConfig struct {
	APIKey string `envconfig:"PLOMBEA_STRIPE_API_KEY"`
	Secret string `envconfig:"PLOMBEA_STRIPE_SECRET"`
	Env    string `envconfig:"PLOMBEA_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type ContactConfig struct {
	RelayURL string        `envconfig:"PLOMBEA_CONTACT_RELAY_URL"`
	Timeout  time.Duration `envconfig:"PLOMBEA_CONTACT_TIMEOUT" default:"10s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PLOMBEA_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PLOMBEA_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PLOMBEA_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName        string        `envconfig:"PLOMBEA_GCS_BUCKET_NAME"`
	UploadURLExpiry   time.Duration `envconfig:"PLOMBEA_GCS_UPLOAD_URL_EXPIRY" default:"15m"`
	DownloadURLExpiry time.Duration `envconfig:"PLOMBEA_GCS_DOWNLOAD_URL_EXPIRY" default:"1h"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"PLOMBEA_PUBSUB_ORDERS_TOPIC" default:"plombea-order-events"`
	OrdersSubscription string `envconfig:"PLOMBEA_PUBSUB_ORDERS_SUBSCRIPTION"`
	MailTopic          string `envconfig:"PLOMBEA_PUBSUB_MAIL_TOPIC" default:"plombea-mail-events"`
	MailSubscription   string `envconfig:"PLOMBEA_PUBSUB_MAIL_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PLOMBEA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PLOMBEA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PLOMBEA_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
