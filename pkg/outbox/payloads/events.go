package payloads

import (
	"time"

	"github.com/google/uuid"
)

// OrderCreatedEvent is published after checkout persists a new order.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	UserID      *uuid.UUID `json:"userId,omitempty"`
	Email       string    `json:"email"`
	TotalCents  int64     `json:"totalCents"`
	Currency    string    `json:"currency"`
	TaxRule     string    `json:"taxRule"`
	CreatedAt   time.Time `json:"createdAt"`
}

// OrderStatusChangedEvent is published whenever an admin moves an order.
type OrderStatusChangedEvent struct {
	OrderID        uuid.UUID `json:"orderId"`
	OrderNumber    string    `json:"orderNumber"`
	FromStatus     string    `json:"fromStatus"`
	ToStatus       string    `json:"toStatus"`
	Carrier        *string   `json:"carrier,omitempty"`
	TrackingNumber *string   `json:"trackingNumber,omitempty"`
	Comment        *string   `json:"comment,omitempty"`
	ChangedAt      time.Time `json:"changedAt"`
}

// ContactSubmittedEvent requests an email relay for a stored contact message.
type ContactSubmittedEvent struct {
	MessageID uuid.UUID `json:"messageId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
}
