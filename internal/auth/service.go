package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/plombea/plombea-backend/internal/users"
	pkgauth "github.com/plombea/plombea-backend/pkg/auth"
	"github.com/plombea/plombea-backend/pkg/auth/session"
	"github.com/plombea/plombea-backend/pkg/config"
	"github.com/plombea/plombea-backend/pkg/db/models"
	"github.com/plombea/plombea-backend/pkg/enums"
	pkgerrors "github.com/plombea/plombea-backend/pkg/errors"
	"github.com/plombea/plombea-backend/pkg/logger"
	"github.com/plombea/plombea-backend/pkg/security"
	"github.com/plombea/plombea-backend/pkg/types"
)

const (
	resetTokenLength        = 48
	verificationTokenLength = 48
	resetTokenTTL           = time.Hour
	verificationTokenTTL    = 24 * time.Hour
)

type sessionManager interface {
	Generate(ctx context.Context, accessID string) (string, error)
	Rotate(ctx context.Context, oldAccessID, provided string) (string, string, error)
	Revoke(ctx context.Context, accessID string) error
}

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// TokenPair is what a successful authentication hands to the client.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// RegisterInput is the signup payload after transport validation.
type RegisterInput struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	BuyerType   enums.BuyerType
	CompanyName string
	VATNumber   string
	Country     string
	Phone       string
	IP          string
}

// LoginInput carries credentials plus the optional second factor.
type LoginInput struct {
	Email    string
	Password string
	TOTPCode string
	IP       string
}

// ProfileInput is the profile update payload.
type ProfileInput struct {
	FirstName              string
	LastName               string
	Phone                  *string
	Country                string
	CompanyName            *string
	VATNumber              *string
	BuyerType              enums.BuyerType
	DefaultBillingAddress  *types.Address
	DefaultShippingAddress *types.Address
}

// Service owns registration, authentication, and account self-management.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*models.User, *TokenPair, error)
	Login(ctx context.Context, input LoginInput) (*models.User, *TokenPair, error)
	Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, accessID string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
	ResendEmailVerification(ctx context.Context, email string) error
	VerifyEmail(ctx context.Context, token string) error
	Enable2FA(ctx context.Context, userID uuid.UUID) (string, error)
	Verify2FA(ctx context.Context, userID uuid.UUID, code string) error
	Disable2FA(ctx context.Context, userID uuid.UUID, code string) error
	Profile(ctx context.Context, userID uuid.UUID) (*models.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, input ProfileInput) (*models.User, error)
}

type service struct {
	users    *users.Repository
	tokens   *TokenRepository
	sessions sessionManager
	limiter  rateLimiter
	jwtCfg   config.JWTConfig
	pwCfg    config.PasswordConfig
	rlCfg    config.AuthRateLimitConfig
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the auth service backed by the provided stack.
func NewService(
	userRepo *users.Repository,
	tokenRepo *TokenRepository,
	sessions sessionManager,
	limiter rateLimiter,
	jwtCfg config.JWTConfig,
	pwCfg config.PasswordConfig,
	rlCfg config.AuthRateLimitConfig,
	logg *logger.Logger,
) (Service, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("user repository required")
	}
	if tokenRepo == nil {
		return nil, fmt.Errorf("token repository required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session manager required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter required")
	}
	return &service{
		users:    userRepo,
		tokens:   tokenRepo,
		sessions: sessions,
		limiter:  limiter,
		jwtCfg:   jwtCfg,
		pwCfg:    pwCfg,
		rlCfg:    rlCfg,
		logg:     logg,
		now:      time.Now,
	}, nil
}

// Register creates an account, queues an email verification token, and signs
// the user in.
func (s *service) Register(ctx context.Context, input RegisterInput) (*models.User, *TokenPair, error) {
	email := users.NormalizeEmail(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required")
	}
	if len(input.Password) < 8 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "password must be at least 8 characters")
	}
	if !input.BuyerType.IsValid() {
		input.BuyerType = enums.BuyerTypeIndividual
	}
	if input.BuyerType == enums.BuyerTypeCompany && strings.TrimSpace(input.CompanyName) == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "company name is required for business accounts")
	}

	if err := s.allow(ctx, "register:email:"+email, int64(s.rlCfg.RegisterEmailLimit), s.rlCfg.RegisterWindow); err != nil {
		return nil, nil, err
	}
	if ip := strings.TrimSpace(input.IP); ip != "" {
		if err := s.allow(ctx, "register:ip:"+ip, int64(s.rlCfg.RegisterIPLimit), s.rlCfg.RegisterWindow); err != nil {
			return nil, nil, err
		}
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeConflict, "an account with this email already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}

	hash, err := security.HashPassword(input.Password, s.pwCfg)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Role:         enums.UserRoleUser,
		BuyerType:    input.BuyerType,
		Country:      countryOrDefault(input.Country),
	}
	if company := strings.TrimSpace(input.CompanyName); company != "" {
		user.CompanyName = &company
	}
	if number := strings.TrimSpace(input.VATNumber); number != "" {
		user.VATNumber = &number
	}
	if phone := strings.TrimSpace(input.Phone); phone != "" {
		user.Phone = &phone
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
	}

	if err := s.issueEmailVerification(ctx, user); err != nil && s.logg != nil {
		s.logg.Error(ctx, "failed to queue email verification", err)
	}

	pair, err := s.mintPair(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Login checks credentials and, when 2FA is enabled, the TOTP code.
func (s *service) Login(ctx context.Context, input LoginInput) (*models.User, *TokenPair, error) {
	email := users.NormalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "email and password are required")
	}

	if err := s.allow(ctx, "login:email:"+email, int64(s.rlCfg.LoginEmailLimit), s.rlCfg.LoginWindow); err != nil {
		return nil, nil, err
	}
	if ip := strings.TrimSpace(input.IP); ip != "" {
		if err := s.allow(ctx, "login:ip:"+ip, int64(s.rlCfg.LoginIPLimit), s.rlCfg.LoginWindow); err != nil {
			return nil, nil, err
		}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil || !ok {
		return nil, nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}

	if user.TOTPEnabled {
		if user.TOTPSecret == nil {
			return nil, nil, pkgerrors.New(pkgerrors.CodeInternal, "2fa misconfigured for account")
		}
		code := strings.TrimSpace(input.TOTPCode)
		if code == "" {
			return nil, nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "2fa code required").
				WithDetails(map[string]bool{"totpRequired": true})
		}
		valid, err := security.VerifyTOTP(*user.TOTPSecret, code, s.now())
		if err != nil || !valid {
			return nil, nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid 2fa code")
		}
	}

	pair, err := s.mintPair(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh rotates the refresh session and mints a new token pair.
func (s *service) Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenPair, error) {
	claims, err := pkgauth.ParseAccessTokenAllowExpired(s.jwtCfg, accessToken)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid access token")
	}

	newAccessID, newRefresh, err := s.sessions.Rotate(ctx, claims.ID, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate session")
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account no longer exists")
	}

	access, err := pkgauth.MintAccessToken(s.jwtCfg, s.now(), pkgauth.AccessTokenPayload{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		JTI:    newAccessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: newRefresh,
		ExpiresIn:    int64(s.jwtCfg.ExpirationMinutes) * 60,
	}, nil
}

// Logout revokes the refresh session tied to the access token id.
func (s *service) Logout(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "access id is required")
	}
	if err := s.sessions.Revoke(ctx, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

// RequestPasswordReset stores a reset token. It succeeds silently for unknown
// emails so the endpoint cannot be used to enumerate accounts.
func (s *service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, users.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}

	token, err := security.GenerateToken(resetTokenLength)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate reset token")
	}
	row := &models.PasswordResetToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: s.now().Add(resetTokenTTL),
	}
	if err := s.tokens.CreatePasswordReset(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store reset token")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithUserID(ctx, user.ID.String()), "password reset token issued")
	}
	return nil
}

// ConfirmPasswordReset consumes a reset token and replaces the password.
func (s *service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 8 {
		return pkgerrors.New(pkgerrors.CodeValidation, "password must be at least 8 characters")
	}
	row, err := s.tokens.FindPasswordReset(ctx, strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid or expired reset token")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup reset token")
	}
	if s.now().After(row.ExpiresAt) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid or expired reset token")
	}

	user, err := s.users.GetByID(ctx, row.UserID)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid or expired reset token")
	}
	hash, err := security.HashPassword(newPassword, s.pwCfg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update password")
	}
	if err := s.tokens.ConsumePasswordReset(ctx, row.ID, s.now()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume reset token")
	}
	return nil
}

// ResendEmailVerification issues a fresh verification token. Unknown and
// already-verified emails succeed silently.
func (s *service) ResendEmailVerification(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, users.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}
	if user.EmailVerified {
		return nil
	}
	if err := s.issueEmailVerification(ctx, user); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store verification token")
	}
	return nil
}

// VerifyEmail consumes a verification token and flips the verified flag.
func (s *service) VerifyEmail(ctx context.Context, token string) error {
	row, err := s.tokens.FindEmailVerification(ctx, strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid or expired verification token")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup verification token")
	}
	if s.now().After(row.ExpiresAt) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid or expired verification token")
	}

	user, err := s.users.GetByID(ctx, row.UserID)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid or expired verification token")
	}
	user.EmailVerified = true
	if err := s.users.Update(ctx, user); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update user")
	}
	if err := s.tokens.ConsumeEmailVerification(ctx, row.ID, s.now()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume verification token")
	}
	return nil
}

// Enable2FA provisions a fresh shared secret. The flag only flips once the
// user proves possession through Verify2FA.
func (s *service) Enable2FA(ctx context.Context, userID uuid.UUID) (string, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.TOTPEnabled {
		return "", pkgerrors.New(pkgerrors.CodeConflict, "2fa is already enabled")
	}

	secret, err := security.GenerateTOTPSecret()
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate totp secret")
	}
	user.TOTPSecret = &secret
	if err := s.users.Update(ctx, user); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store totp secret")
	}
	return secret, nil
}

// Verify2FA validates the first code against the provisioned secret and turns
// the second factor on.
func (s *service) Verify2FA(ctx context.Context, userID uuid.UUID, code string) error {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.TOTPSecret == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "2fa has not been provisioned")
	}
	valid, err := security.VerifyTOTP(*user.TOTPSecret, strings.TrimSpace(code), s.now())
	if err != nil || !valid {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid 2fa code")
	}
	user.TOTPEnabled = true
	if err := s.users.Update(ctx, user); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enable 2fa")
	}
	return nil
}

// Disable2FA turns the second factor off after a valid code.
func (s *service) Disable2FA(ctx context.Context, userID uuid.UUID, code string) error {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TOTPEnabled || user.TOTPSecret == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "2fa is not enabled")
	}
	valid, err := security.VerifyTOTP(*user.TOTPSecret, strings.TrimSpace(code), s.now())
	if err != nil || !valid {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid 2fa code")
	}
	user.TOTPEnabled = false
	user.TOTPSecret = nil
	if err := s.users.Update(ctx, user); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "disable 2fa")
	}
	return nil
}

// Profile loads the caller's account.
func (s *service) Profile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.loadUser(ctx, userID)
}

// UpdateProfile applies the payload to the caller's account.
func (s *service) UpdateProfile(ctx context.Context, userID uuid.UUID, input ProfileInput) (*models.User, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if input.BuyerType.IsValid() {
		user.BuyerType = input.BuyerType
	}
	if user.BuyerType == enums.BuyerTypeCompany {
		if input.CompanyName == nil || strings.TrimSpace(*input.CompanyName) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "company name is required for business accounts")
		}
	}
	if name := strings.TrimSpace(input.FirstName); name != "" {
		user.FirstName = name
	}
	if name := strings.TrimSpace(input.LastName); name != "" {
		user.LastName = name
	}
	if input.Phone != nil {
		user.Phone = input.Phone
	}
	if country := normalizeCountry(input.Country); country != "" {
		user.Country = country
	}
	if input.CompanyName != nil {
		user.CompanyName = input.CompanyName
	}
	if input.VATNumber != nil {
		user.VATNumber = input.VATNumber
	}
	if input.DefaultBillingAddress != nil {
		user.DefaultBillingAddress = input.DefaultBillingAddress
	}
	if input.DefaultShippingAddress != nil {
		user.DefaultShippingAddress = input.DefaultShippingAddress
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update profile")
	}
	return user, nil
}

func (s *service) loadUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}

func (s *service) mintPair(ctx context.Context, user *models.User) (*TokenPair, error) {
	accessID := session.NewAccessID()
	access, err := pkgauth.MintAccessToken(s.jwtCfg, s.now(), pkgauth.AccessTokenPayload{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		JTI:    accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}
	refresh, err := s.sessions.Generate(ctx, accessID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refresh session")
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.jwtCfg.ExpirationMinutes) * 60,
	}, nil
}

func (s *service) issueEmailVerification(ctx context.Context, user *models.User) error {
	token, err := security.GenerateToken(verificationTokenLength)
	if err != nil {
		return err
	}
	return s.tokens.CreateEmailVerification(ctx, &models.EmailVerificationToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: s.now().Add(verificationTokenTTL),
	})
}

func (s *service) allow(ctx context.Context, scope string, limit int64, window time.Duration) error {
	if limit <= 0 || window <= 0 {
		return nil
	}
	ok, _, err := s.limiter.FixedWindowAllow(ctx, scope, limit, window)
	if err != nil {
		// A limiter outage must not lock everyone out.
		if s.logg != nil {
			s.logg.Warn(ctx, "auth rate limiter unavailable")
		}
		return nil
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later")
	}
	return nil
}

func normalizeCountry(country string) string {
	return strings.ToUpper(strings.TrimSpace(country))
}

func countryOrDefault(country string) string {
	if normalized := normalizeCountry(country); normalized != "" {
		return normalized
	}
	return "FR"
}
