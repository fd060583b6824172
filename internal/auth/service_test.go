package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/plombea/plombea-backend/internal/users"
	pkgauth "github.com/plombea/plombea-backend/pkg/auth"
	"github.com/plombea/plombea-backend/pkg/config"
	"github.com/plombea/plombea-backend/pkg/db/models"
	"github.com/plombea/plombea-backend/pkg/enums"
	pkgerrors "github.com/plombea/plombea-backend/pkg/errors"
	"github.com/plombea/plombea-backend/pkg/security"
)

type stubSessions struct {
	generated map[string]string
	revoked   []string
	counter   int
}

func newStubSessions() *stubSessions {
	return &stubSessions{generated: map[string]string{}}
}

func (s *stubSessions) Generate(_ context.Context, accessID string) (string, error) {
	s.counter++
	token := fmt.Sprintf("refresh-%d", s.counter)
	s.generated[accessID] = token
	return token, nil
}

func (s *stubSessions) Rotate(_ context.Context, oldAccessID, provided string) (string, string, error) {
	stored, ok := s.generated[oldAccessID]
	if !ok || stored != provided {
		return "", "", fmt.Errorf("invalid refresh token")
	}
	delete(s.generated, oldAccessID)
	newID := uuid.NewString()
	token, _ := s.Generate(context.Background(), newID)
	return newID, token, nil
}

func (s *stubSessions) Revoke(_ context.Context, accessID string) error {
	s.revoked = append(s.revoked, accessID)
	delete(s.generated, accessID)
	return nil
}

type stubLimiter struct {
	counts map[string]int64
	deny   map[string]bool
	err    error
}

func newStubLimiter() *stubLimiter {
	return &stubLimiter{counts: map[string]int64{}, deny: map[string]bool{}}
}

func (l *stubLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if l.err != nil {
		return false, 0, l.err
	}
	if l.deny[scope] {
		return false, limit + 1, nil
	}
	l.counts[scope]++
	return l.counts[scope] <= limit, l.counts[scope], nil
}

type fixture struct {
	svc      Service
	users    *users.Repository
	tokens   *TokenRepository
	sessions *stubSessions
	limiter  *stubLimiter
	db       *gorm.DB
}

var testJWT = config.JWTConfig{
	Secret:                 "test-secret",
	Issuer:                 "plombea",
	ExpirationMinutes:      15,
	RefreshTokenTTLMinutes: 43200,
}

var testPW = config.PasswordConfig{
	ArgonMemoryKB:    8 * 1024,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

var testRL = config.AuthRateLimitConfig{
	LoginWindow:        time.Minute,
	LoginEmailLimit:    5,
	LoginIPLimit:       20,
	RegisterWindow:     5 * time.Minute,
	RegisterEmailLimit: 3,
	RegisterIPLimit:    20,
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.PasswordResetToken{}, &models.EmailVerificationToken{},
	))

	userRepo := users.NewRepository(db)
	tokenRepo := NewTokenRepository(db)
	sessions := newStubSessions()
	limiter := newStubLimiter()
	svc, err := NewService(userRepo, tokenRepo, sessions, limiter, testJWT, testPW, testRL, nil)
	require.NoError(t, err)
	return &fixture{svc: svc, users: userRepo, tokens: tokenRepo, sessions: sessions, limiter: limiter, db: db}
}

func register(t *testing.T, f *fixture, email string) *models.User {
	t.Helper()
	user, pair, err := f.svc.Register(context.Background(), RegisterInput{
		Email:     email,
		Password:  "motdepasse1",
		FirstName: "Jean",
		LastName:  "Martin",
	})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	return user
}

func TestRegisterCreatesUserAndVerificationToken(t *testing.T) {
	f := newFixture(t)
	user := register(t, f, "Jean@Chantier.FR")

	assert.Equal(t, "jean@chantier.fr", user.Email)
	assert.Equal(t, enums.UserRoleUser, user.Role)
	assert.Equal(t, "FR", user.Country)
	assert.False(t, user.EmailVerified)

	var count int64
	require.NoError(t, f.db.Model(&models.EmailVerificationToken{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	register(t, f, "jean@chantier.fr")

	_, _, err := f.svc.Register(context.Background(), RegisterInput{
		Email:    "jean@chantier.fr",
		Password: "motdepasse1",
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
}

func TestRegisterCompanyRequiresName(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.Register(context.Background(), RegisterInput{
		Email:     "pro@chantier.fr",
		Password:  "motdepasse1",
		BuyerType: enums.BuyerTypeCompany,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestLoginHappyPathAndBadPassword(t *testing.T) {
	f := newFixture(t)
	register(t, f, "jean@chantier.fr")

	user, pair, err := f.svc.Login(context.Background(), LoginInput{
		Email:    "jean@chantier.fr",
		Password: "motdepasse1",
	})
	require.NoError(t, err)
	assert.Equal(t, "jean@chantier.fr", user.Email)

	claims, err := pkgauth.ParseAccessToken(testJWT, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	_, _, err = f.svc.Login(context.Background(), LoginInput{
		Email:    "jean@chantier.fr",
		Password: "mauvais",
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeUnauthorized, typed.Code())
}

func TestLoginRateLimited(t *testing.T) {
	f := newFixture(t)
	register(t, f, "jean@chantier.fr")
	f.limiter.deny["login:email:jean@chantier.fr"] = true

	_, _, err := f.svc.Login(context.Background(), LoginInput{
		Email:    "jean@chantier.fr",
		Password: "motdepasse1",
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeRateLimit, typed.Code())
}

func TestLoginLimiterOutageFailsOpen(t *testing.T) {
	f := newFixture(t)
	register(t, f, "jean@chantier.fr")
	f.limiter.err = fmt.Errorf("redis down")

	_, _, err := f.svc.Login(context.Background(), LoginInput{
		Email:    "jean@chantier.fr",
		Password: "motdepasse1",
	})
	require.NoError(t, err)
}

func TestLoginWithTOTP(t *testing.T) {
	f := newFixture(t)
	user := register(t, f, "jean@chantier.fr")

	secret, err := f.svc.Enable2FA(context.Background(), user.ID)
	require.NoError(t, err)
	code, err := security.TOTPCode(secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.svc.Verify2FA(context.Background(), user.ID, code))

	// Password alone is no longer enough.
	_, _, err = f.svc.Login(context.Background(), LoginInput{
		Email:    "jean@chantier.fr",
		Password: "motdepasse1",
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeUnauthorized, typed.Code())

	code, err = security.TOTPCode(secret, time.Now())
	require.NoError(t, err)
	_, _, err = f.svc.Login(context.Background(), LoginInput{
		Email:    "jean@chantier.fr",
		Password: "motdepasse1",
		TOTPCode: code,
	})
	require.NoError(t, err)
}

func TestDisable2FARequiresValidCode(t *testing.T) {
	f := newFixture(t)
	user := register(t, f, "jean@chantier.fr")
	secret, err := f.svc.Enable2FA(context.Background(), user.ID)
	require.NoError(t, err)
	code, err := security.TOTPCode(secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.svc.Verify2FA(context.Background(), user.ID, code))

	err = f.svc.Disable2FA(context.Background(), user.ID, "000000")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeUnauthorized, typed.Code())

	code, err = security.TOTPCode(secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.svc.Disable2FA(context.Background(), user.ID, code))

	stored, err := f.users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, stored.TOTPEnabled)
	assert.Nil(t, stored.TOTPSecret)
}

func TestRefreshRotatesSession(t *testing.T) {
	f := newFixture(t)
	register(t, f, "jean@chantier.fr")

	_, pair, err := f.svc.Login(context.Background(), LoginInput{
		Email:    "jean@chantier.fr",
		Password: "motdepasse1",
	})
	require.NoError(t, err)

	next, err := f.svc.Refresh(context.Background(), pair.AccessToken, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// The old pair cannot be replayed.
	_, err = f.svc.Refresh(context.Background(), pair.AccessToken, pair.RefreshToken)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t)
	register(t, f, "jean@chantier.fr")

	require.NoError(t, f.svc.RequestPasswordReset(context.Background(), "jean@chantier.fr"))
	// Unknown emails do not error.
	require.NoError(t, f.svc.RequestPasswordReset(context.Background(), "inconnu@chantier.fr"))

	var row models.PasswordResetToken
	require.NoError(t, f.db.First(&row).Error)

	require.NoError(t, f.svc.ConfirmPasswordReset(context.Background(), row.Token, "nouveaumdp1"))

	// Old password is gone, new one works.
	_, _, err := f.svc.Login(context.Background(), LoginInput{Email: "jean@chantier.fr", Password: "motdepasse1"})
	require.Error(t, err)
	_, _, err = f.svc.Login(context.Background(), LoginInput{Email: "jean@chantier.fr", Password: "nouveaumdp1"})
	require.NoError(t, err)

	// The token is single-use.
	err = f.svc.ConfirmPasswordReset(context.Background(), row.Token, "encoreun1")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeUnauthorized, typed.Code())
}

func TestVerifyEmailFlow(t *testing.T) {
	f := newFixture(t)
	user := register(t, f, "jean@chantier.fr")

	var row models.EmailVerificationToken
	require.NoError(t, f.db.Where("user_id = ?", user.ID).First(&row).Error)

	require.NoError(t, f.svc.VerifyEmail(context.Background(), row.Token))

	stored, err := f.users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, stored.EmailVerified)

	// Resend for a verified account is a silent no-op.
	require.NoError(t, f.svc.ResendEmailVerification(context.Background(), "jean@chantier.fr"))
	var count int64
	require.NoError(t, f.db.Model(&models.EmailVerificationToken{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	user := register(t, f, "jean@chantier.fr")

	phone := "+33611223344"
	company := "Martin SARL"
	updated, err := f.svc.UpdateProfile(context.Background(), user.ID, ProfileInput{
		FirstName:   "Jean-Pierre",
		Phone:       &phone,
		Country:     "be",
		BuyerType:   enums.BuyerTypeCompany,
		CompanyName: &company,
	})
	require.NoError(t, err)
	assert.Equal(t, "Jean-Pierre", updated.FirstName)
	assert.Equal(t, "BE", updated.Country)
	assert.Equal(t, enums.BuyerTypeCompany, updated.BuyerType)

	// Switching to company without a name is rejected.
	other := register(t, f, "autre@chantier.fr")
	_, err = f.svc.UpdateProfile(context.Background(), other.ID, ProfileInput{
		BuyerType: enums.BuyerTypeCompany,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestLogoutRevokesSession(t *testing.T) {
	f := newFixture(t)
	register(t, f, "jean@chantier.fr")
	_, pair, err := f.svc.Login(context.Background(), LoginInput{
		Email:    "jean@chantier.fr",
		Password: "motdepasse1",
	})
	require.NoError(t, err)

	claims, err := pkgauth.ParseAccessToken(testJWT, pair.AccessToken)
	require.NoError(t, err)
	require.NoError(t, f.svc.Logout(context.Background(), claims.ID))
	assert.Contains(t, f.sessions.revoked, claims.ID)
}
