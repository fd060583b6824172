package users

import (
	"github.com/plombea/plombea-backend/pkg/config"
	"github.com/plombea/plombea-backend/pkg/enums"
)

// AdminPolicy decides who may use the back office. A user qualifies through
// the admin role or through the configured email allow-list; both paths go
// through this single check.
type AdminPolicy struct {
	allowed map[string]struct{}
}

// NewAdminPolicy builds the policy from the configured allow-list.
func NewAdminPolicy(cfg config.AdminConfig) *AdminPolicy {
	allowed := make(map[string]struct{}, len(cfg.AllowedEmails))
	for _, email := range cfg.AllowedEmails {
		normalized := NormalizeEmail(email)
		if normalized == "" {
			continue
		}
		allowed[normalized] = struct{}{}
	}
	return &AdminPolicy{allowed: allowed}
}

// IsAdmin reports whether the (role, email) pair may access admin surfaces.
func (p *AdminPolicy) IsAdmin(role enums.UserRole, email string) bool {
	if role == enums.UserRoleAdmin {
		return true
	}
	_, ok := p.allowed[NormalizeEmail(email)]
	return ok
}
