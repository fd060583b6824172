package middleware

import (
	"net/http"

	"github.com/plombea/plombea-backend/api/responses"
	"github.com/plombea/plombea-backend/internal/users"
	"github.com/plombea/plombea-backend/pkg/enums"
	pkgerrors "github.com/plombea/plombea-backend/pkg/errors"
	"github.com/plombea/plombea-backend/pkg/logger"
)

// RequireAdmin gates a subtree on the admin policy: either the token carries
// the admin role or the email sits on the configured allow-list.
func RequireAdmin(policy *users.AdminPolicy, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, err := enums.ParseUserRole(RoleFromContext(r.Context()))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required"))
				return
			}
			if policy == nil || !policy.IsAdmin(role, EmailFromContext(r.Context())) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
