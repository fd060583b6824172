package enums

import "fmt"

// UserRole is the storefront authorization role.
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

func (r UserRole) String() string {
	return string(r)
}

func (r UserRole) IsValid() bool {
	return r == UserRoleUser || r == UserRoleAdmin
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	switch value {
	case string(UserRoleUser):
		return UserRoleUser, nil
	case string(UserRoleAdmin):
		return UserRoleAdmin, nil
	default:
		return "", fmt.Errorf("invalid user role %q", value)
	}
}
