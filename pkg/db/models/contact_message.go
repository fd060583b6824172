package models

import (
	"time"

	"github.com/google/uuid"
)

// ContactMessage persists a contact form submission before relaying it.
type ContactMessage struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Email     string    `gorm:"column:email;not null"`
	Subject   string    `gorm:"column:subject;not null;default:''"`
	Message   string    `gorm:"column:message;not null"`
	Relayed   bool      `gorm:"column:relayed;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (ContactMessage) TableName() string { return "contact_messages" }
