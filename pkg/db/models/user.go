package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/plombea/plombea-backend/pkg/enums"
	"github.com/plombea/plombea-backend/pkg/types"
)

// User represents the canonical identity entity.
type User struct {
	ID                     uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Email                  string          `gorm:"column:email;type:text;not null"`
	PasswordHash           string          `gorm:"column:password_hash;not null"`
	FirstName              string          `gorm:"column:first_name;not null;default:''"`
	LastName               string          `gorm:"column:last_name;not null;default:''"`
	Role                   enums.UserRole  `gorm:"column:role;not null;default:'user'"`
	BuyerType              enums.BuyerType `gorm:"column:buyer_type;not null;default:'individual'"`
	CompanyName            *string         `gorm:"column:company_name"`
	VATNumber              *string         `gorm:"column:vat_number"`
	Country                string          `gorm:"column:country;not null;default:'FR'"`
	Phone                  *string         `gorm:"column:phone"`
	TOTPSecret             *string         `gorm:"column:totp_secret"`
	TOTPEnabled            bool            `gorm:"column:totp_enabled;not null;default:false"`
	EmailVerified          bool            `gorm:"column:email_verified;not null;default:false"`
	DefaultBillingAddress  *types.Address  `gorm:"column:default_billing_address;type:jsonb;serializer:json"`
	DefaultShippingAddress *types.Address  `gorm:"column:default_shipping_address;type:jsonb;serializer:json"`
	CreatedAt              time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string { return "users" }
