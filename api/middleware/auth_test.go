package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgAuth "github.com/plombea/plombea-backend/pkg/auth"
	"github.com/plombea/plombea-backend/pkg/auth/session"
	"github.com/plombea/plombea-backend/pkg/config"
	"github.com/plombea/plombea-backend/pkg/enums"
)

type stubSessionChecker struct {
	ok      bool
	err     error
	checked string
}

func (s *stubSessionChecker) HasSession(_ context.Context, accessID string) (bool, error) {
	s.checked = accessID
	return s.ok, s.err
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "plombea", ExpirationMinutes: 10}
}

func mintToken(t *testing.T, cfg config.JWTConfig, role enums.UserRole) (string, string) {
	t.Helper()
	accessID := session.NewAccessID()
	token, err := pkgAuth.MintAccessToken(cfg, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Email:  "artisan@chantier.fr",
		Role:   role,
		JTI:    accessID,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	return token, accessID
}

func TestAuthSeedsContext(t *testing.T) {
	cfg := testJWTConfig()
	checker := &stubSessionChecker{ok: true}
	token, accessID := mintToken(t, cfg, enums.UserRoleUser)

	var gotUser, gotRole, gotAccess string
	handler := Auth(cfg, checker, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
		gotAccess = AccessIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if gotUser == "" || gotRole != "user" {
		t.Fatalf("claims not seeded: user=%q role=%q", gotUser, gotRole)
	}
	if gotAccess != accessID {
		t.Fatalf("expected access id %s got %s", accessID, gotAccess)
	}
	if checker.checked != accessID {
		t.Fatalf("session check used %s", checker.checked)
	}
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWTConfig(), &stubSessionChecker{ok: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestAuthRejectsRevokedSession(t *testing.T) {
	cfg := testJWTConfig()
	token, _ := mintToken(t, cfg, enums.UserRoleUser)
	handler := Auth(cfg, &stubSessionChecker{ok: false}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestOptionalAuthLetsAnonymousThrough(t *testing.T) {
	var ran bool
	handler := OptionalAuth(testJWTConfig(), &stubSessionChecker{ok: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ran = true
		if UserIDFromContext(r.Context()) != "" {
			t.Fatal("anonymous request must not carry a user id")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !ran || rec.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
}

func TestOptionalAuthStillRejectsBadTokens(t *testing.T) {
	handler := OptionalAuth(testJWTConfig(), &stubSessionChecker{ok: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestGuestKeyHeader(t *testing.T) {
	var got string
	handler := GuestKey()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GuestKeyFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Guest-Key", "guest-abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got != "guest-abc" {
		t.Fatalf("expected guest key in context, got %q", got)
	}
}
