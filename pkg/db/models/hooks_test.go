package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	return db
}

// Every model must AutoMigrate cleanly onto sqlite, since that is what the
// service-layer test fixtures run against.
func TestModelsMigrateOnSqlite(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.AutoMigrate(
		&User{},
		&Cart{}, &CartItem{},
		&Product{}, &ProductVariant{},
		&CheckoutSession{},
		&Order{}, &OrderItem{}, &OrderStatusEvent{},
		&ContactMessage{},
		&Invoice{},
		&OutboxEvent{}, &OutboxDLQ{},
		&PasswordResetToken{}, &EmailVerificationToken{},
	))
}

func TestCreateMintsMissingID(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.AutoMigrate(&Cart{}, &CartItem{}))

	cart := Cart{UserID: ptr(uuid.New())}
	require.NoError(t, db.Create(&cart).Error)
	assert.NotEqual(t, uuid.Nil, cart.ID)

	var stored Cart
	require.NoError(t, db.First(&stored, "id = ?", cart.ID).Error)
	assert.Equal(t, cart.ID, stored.ID)
}

func TestCreateKeepsCallerID(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.AutoMigrate(&Product{}))

	id := uuid.New()
	product := Product{ID: id, Slug: "coude-cuivre-90", Name: "Coude cuivre 90", PriceCents: 2000}
	require.NoError(t, db.Create(&product).Error)
	assert.Equal(t, id, product.ID)
}

func ptr[T any](v T) *T { return &v }
