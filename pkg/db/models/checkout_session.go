package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/plombea/plombea-backend/pkg/enums"
	"github.com/plombea/plombea-backend/pkg/types"
)

// CheckoutSession tracks wizard progress between the billing, shipping, and
// payment steps.
type CheckoutSession struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	CartID          uuid.UUID          `gorm:"column:cart_id;type:uuid;not null"`
	UserID          *uuid.UUID         `gorm:"column:user_id;type:uuid"`
	GuestKey        *string            `gorm:"column:guest_key"`
	Step            enums.CheckoutStep `gorm:"column:step;not null;default:'billing'"`
	Email           string             `gorm:"column:email;not null;default:''"`
	BuyerType       enums.BuyerType    `gorm:"column:buyer_type;not null;default:'individual'"`
	VATNumber       *string            `gorm:"column:vat_number"`
	BillingAddress  *types.Address     `gorm:"column:billing_address;type:jsonb;serializer:json"`
	ShippingAddress *types.Address     `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	ShipToBilling   bool               `gorm:"column:ship_to_billing;not null;default:true"`
	ShippingMethod  *string            `gorm:"column:shipping_method"`
	PaymentIntentID *string            `gorm:"column:payment_intent_id"`
	ExpiresAt       time.Time          `gorm:"column:expires_at;not null"`
	CompletedAt     *time.Time         `gorm:"column:completed_at"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (CheckoutSession) TableName() string { return "checkout_sessions" }

// Expired reports whether the session passed its TTL without completing.
func (s CheckoutSession) Expired(now time.Time) bool {
	return s.CompletedAt == nil && now.After(s.ExpiresAt)
}
