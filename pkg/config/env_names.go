package config

// EnvPrefix is passed to envconfig; individual tags carry the full name so
// the prefix stays empty here.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "PLOMBEA_DB_DSN"
	EnvDBHost = "PLOMBEA_DB_HOST"
	EnvDBUser = "PLOMBEA_DB_USER"
	EnvDBName = "PLOMBEA_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
