package models

import (
	"time"

	"github.com/google/uuid"
)

// PasswordResetToken is a single-use credential for the forgot-password flow.
type PasswordResetToken struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID     uuid.UUID  `gorm:"column:user_id;type:uuid;not null"`
	Token      string     `gorm:"column:token;not null;uniqueIndex"`
	ExpiresAt  time.Time  `gorm:"column:expires_at;not null"`
	ConsumedAt *time.Time `gorm:"column:consumed_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (PasswordResetToken) TableName() string { return "password_reset_tokens" }

// EmailVerificationToken confirms ownership of a registered email address.
type EmailVerificationToken struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID     uuid.UUID  `gorm:"column:user_id;type:uuid;not null"`
	Token      string     `gorm:"column:token;not null;uniqueIndex"`
	ExpiresAt  time.Time  `gorm:"column:expires_at;not null"`
	ConsumedAt *time.Time `gorm:"column:consumed_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (EmailVerificationToken) TableName() string { return "email_verification_tokens" }
