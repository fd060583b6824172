package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/plombea/plombea-backend/pkg/db/models"
)

// TokenRepository manages single-use credential rows for the password reset
// and email verification flows.
type TokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository binds the repository to the provided DB handle.
func NewTokenRepository(db *gorm.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *TokenRepository) WithTx(tx *gorm.DB) *TokenRepository {
	if tx == nil {
		return r
	}
	return &TokenRepository{db: tx}
}

// CreatePasswordReset stores a reset token.
func (r *TokenRepository) CreatePasswordReset(ctx context.Context, row *models.PasswordResetToken) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// FindPasswordReset loads an unconsumed reset token.
func (r *TokenRepository) FindPasswordReset(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	var row models.PasswordResetToken
	err := r.db.WithContext(ctx).
		Where("token = ? AND consumed_at IS NULL", token).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ConsumePasswordReset marks a reset token as used.
func (r *TokenRepository) ConsumePasswordReset(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PasswordResetToken{}).
		Where("id = ?", id).
		Update("consumed_at", at).Error
}

// CreateEmailVerification stores a verification token.
func (r *TokenRepository) CreateEmailVerification(ctx context.Context, row *models.EmailVerificationToken) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// FindEmailVerification loads an unconsumed verification token.
func (r *TokenRepository) FindEmailVerification(ctx context.Context, token string) (*models.EmailVerificationToken, error) {
	var row models.EmailVerificationToken
	err := r.db.WithContext(ctx).
		Where("token = ? AND consumed_at IS NULL", token).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ConsumeEmailVerification marks a verification token as used.
func (r *TokenRepository) ConsumeEmailVerification(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.EmailVerificationToken{}).
		Where("id = ?", id).
		Update("consumed_at", at).Error
}
