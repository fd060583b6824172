package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/plombea/plombea-backend/internal/users"
	"github.com/plombea/plombea-backend/pkg/config"
)

func adminRequest(role, email string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := WithRole(req.Context(), role)
	ctx = WithEmail(ctx, email)
	return req.WithContext(ctx)
}

func TestRequireAdmin(t *testing.T) {
	policy := users.NewAdminPolicy(config.AdminConfig{AllowedEmails: []string{"patron@plombea.fr"}})
	var ran bool
	handler := RequireAdmin(policy, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ran = true
	}))

	cases := []struct {
		name   string
		role   string
		email  string
		status int
	}{
		{"admin role", "admin", "anyone@chantier.fr", http.StatusOK},
		{"allow-listed user", "user", "patron@plombea.fr", http.StatusOK},
		{"plain user", "user", "client@chantier.fr", http.StatusForbidden},
		{"unknown role", "", "", http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ran = false
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, adminRequest(tc.role, tc.email))
			if rec.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, rec.Code)
			}
			if ran != (tc.status == http.StatusOK) {
				t.Fatalf("handler ran=%v for status %d", ran, tc.status)
			}
		})
	}
}
