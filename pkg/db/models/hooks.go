package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IDs are minted application-side so inserts behave the same on Postgres
// and on the sqlite driver the tests run against. A caller-supplied ID is
// kept as-is.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (u *User) BeforeCreate(*gorm.DB) error            { ensureID(&u.ID); return nil }
func (c *Cart) BeforeCreate(*gorm.DB) error            { ensureID(&c.ID); return nil }
func (i *CartItem) BeforeCreate(*gorm.DB) error        { ensureID(&i.ID); return nil }
func (p *Product) BeforeCreate(*gorm.DB) error         { ensureID(&p.ID); return nil }
func (v *ProductVariant) BeforeCreate(*gorm.DB) error  { ensureID(&v.ID); return nil }
func (s *CheckoutSession) BeforeCreate(*gorm.DB) error { ensureID(&s.ID); return nil }
func (o *Order) BeforeCreate(*gorm.DB) error           { ensureID(&o.ID); return nil }
func (i *OrderItem) BeforeCreate(*gorm.DB) error       { ensureID(&i.ID); return nil }
func (e *OrderStatusEvent) BeforeCreate(*gorm.DB) error { ensureID(&e.ID); return nil }
func (m *ContactMessage) BeforeCreate(*gorm.DB) error  { ensureID(&m.ID); return nil }
func (i *Invoice) BeforeCreate(*gorm.DB) error         { ensureID(&i.ID); return nil }
func (e *OutboxEvent) BeforeCreate(*gorm.DB) error     { ensureID(&e.ID); return nil }
func (d *OutboxDLQ) BeforeCreate(*gorm.DB) error       { ensureID(&d.ID); return nil }

func (t *PasswordResetToken) BeforeCreate(*gorm.DB) error      { ensureID(&t.ID); return nil }
func (t *EmailVerificationToken) BeforeCreate(*gorm.DB) error  { ensureID(&t.ID); return nil }
