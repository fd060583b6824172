package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/plombea/plombea-backend/pkg/enums"
	"github.com/plombea/plombea-backend/pkg/types"
)

// Order is the immutable record produced by a completed checkout.
type Order struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber     string             `gorm:"column:order_number;not null;uniqueIndex"`
	UserID          *uuid.UUID         `gorm:"column:user_id;type:uuid"`
	Email           string             `gorm:"column:email;not null"`
	Status          enums.OrderStatus  `gorm:"column:status;not null;default:'pending'"`
	Currency        enums.Currency     `gorm:"column:currency;not null;default:'EUR'"`
	SubtotalCents   int64              `gorm:"column:subtotal_cents;not null;default:0"`
	ShippingCents   int64              `gorm:"column:shipping_cents;not null;default:0"`
	TaxCents        int64              `gorm:"column:tax_cents;not null;default:0"`
	TotalCents      int64              `gorm:"column:total_cents;not null;default:0"`
	TaxRule         enums.TaxRule      `gorm:"column:tax_rule;not null;default:'B2C_FRANCE'"`
	TaxRate         decimal.Decimal    `gorm:"column:tax_rate;type:numeric(5,4);not null;default:0.2000"`
	VATNumber       *string            `gorm:"column:vat_number"`
	BuyerType       enums.BuyerType    `gorm:"column:buyer_type;not null;default:'individual'"`
	BillingAddress  types.Address      `gorm:"column:billing_address;type:jsonb;serializer:json;not null"`
	ShippingAddress types.Address      `gorm:"column:shipping_address;type:jsonb;serializer:json;not null"`
	ShippingMethod  string             `gorm:"column:shipping_method;not null;default:'Standard'"`
	ShippingMinDays int                `gorm:"column:shipping_min_days;not null;default:3"`
	ShippingMaxDays int                `gorm:"column:shipping_max_days;not null;default:7"`
	PaymentIntentID *string            `gorm:"column:payment_intent_id"`
	Carrier         *string            `gorm:"column:carrier"`
	TrackingNumber  *string            `gorm:"column:tracking_number"`
	AdminComment    *string            `gorm:"column:admin_comment"`
	InvoiceID       *uuid.UUID         `gorm:"column:invoice_id;type:uuid"`
	Items           []OrderItem        `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	StatusEvents    []OrderStatusEvent `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

// OrderItem snapshots one purchased line at checkout time.
type OrderItem struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID  `gorm:"column:order_id;type:uuid;not null"`
	ProductID   uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	VariantID   *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	ProductName string     `gorm:"column:product_name;not null"`
	SKU         *string    `gorm:"column:sku"`
	Quantity    int        `gorm:"column:quantity;not null"`
	UnitCents   int64      `gorm:"column:unit_cents;not null"`
	WeightGrams int        `gorm:"column:weight_grams;not null;default:500"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (OrderItem) TableName() string { return "order_items" }

// OrderStatusEvent is the append-only audit trail of admin transitions.
type OrderStatusEvent struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID         `gorm:"column:order_id;type:uuid;not null"`
	FromStatus enums.OrderStatus `gorm:"column:from_status;not null"`
	ToStatus   enums.OrderStatus `gorm:"column:to_status;not null"`
	ActorID    *uuid.UUID        `gorm:"column:actor_id;type:uuid"`
	Comment    *string           `gorm:"column:comment"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (OrderStatusEvent) TableName() string { return "order_status_events" }
