package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/plombea/plombea-backend/pkg/db/models"
	"github.com/plombea/plombea-backend/pkg/pagination"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Product{}, &models.ProductVariant{}))
	return conn
}

func seedProduct(t *testing.T, db *gorm.DB, slug string, createdAt time.Time, mutate func(*models.Product)) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:          uuid.New(),
		Slug:        slug,
		Name:        slug,
		PriceCents:  1990,
		WeightGrams: 500,
		Active:      true,
		Stock:       10,
		CreatedAt:   createdAt,
	}
	if mutate != nil {
		mutate(product)
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

func TestProductRepositoryListFiltersAndPaginates(t *testing.T) {
	db := newTestDB(t)
	repo := NewProductRepository(db)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		seedProduct(t, db, fmt.Sprintf("raccord-%d", i), base.Add(time.Duration(i)*time.Minute), func(p *models.Product) {
			p.Category = "raccords"
		})
	}
	seedProduct(t, db, "robinet-1", base.Add(time.Hour), func(p *models.Product) {
		p.Category = "robinetterie"
	})
	seedProduct(t, db, "inactive-1", base.Add(2*time.Hour), func(p *models.Product) {
		p.Active = false
	})

	rows, err := repo.List(ctx, ListFilter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, rows, 4, "inactive products stay hidden")
	assert.Equal(t, "robinet-1", rows[0].Slug, "newest first")

	rows, err = repo.List(ctx, ListFilter{Category: "raccords", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	// Cursor anchored at the newest raccord skips it on the next page.
	cursor := &pagination.Cursor{CreatedAt: rows[0].CreatedAt, ID: rows[0].ID}
	rows, err = repo.List(ctx, ListFilter{Category: "raccords", Cursor: cursor, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestProductRepositoryListSearchesNameAndDescription(t *testing.T) {
	db := newTestDB(t)
	repo := NewProductRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	seedProduct(t, db, "coude-cuivre", now, func(p *models.Product) {
		p.Name = "Coude cuivre 90"
	})
	seedProduct(t, db, "te-laiton", now.Add(time.Second), func(p *models.Product) {
		p.Name = "Te laiton"
		p.Description = "Raccord en cuivre et laiton"
	})

	rows, err := repo.List(ctx, ListFilter{Search: "CUIVRE", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = repo.List(ctx, ListFilter{Search: "laiton", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, "te-laiton", rows[0].Slug)
}

func TestProductRepositoryGetBySlugSkipsInactive(t *testing.T) {
	db := newTestDB(t)
	repo := NewProductRepository(db)
	ctx := context.Background()

	active := seedProduct(t, db, "vanne-pvc", time.Now().UTC(), nil)
	seedProduct(t, db, "vanne-retiree", time.Now().UTC(), func(p *models.Product) {
		p.Active = false
	})

	got, err := repo.GetBySlug(ctx, "vanne-pvc")
	require.NoError(t, err)
	assert.Equal(t, active.ID, got.ID)

	_, err = repo.GetBySlug(ctx, "vanne-retiree")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestProductRepositoryVariantOwnership(t *testing.T) {
	db := newTestDB(t)
	repo := NewProductRepository(db)
	ctx := context.Background()

	product := seedProduct(t, db, "flexible-inox", time.Now().UTC(), nil)
	other := seedProduct(t, db, "flexible-alu", time.Now().UTC(), nil)

	variant := &models.ProductVariant{
		ID:        uuid.New(),
		ProductID: product.ID,
		SKU:       "FLX-300",
		Label:     "300mm",
	}
	require.NoError(t, db.Create(variant).Error)

	got, err := repo.GetVariant(ctx, product.ID, variant.ID)
	require.NoError(t, err)
	assert.Equal(t, "FLX-300", got.SKU)

	_, err = repo.GetVariant(ctx, other.ID, variant.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestProductRepositoryDeactivate(t *testing.T) {
	db := newTestDB(t)
	repo := NewProductRepository(db)
	ctx := context.Background()

	product := seedProduct(t, db, "siphon-pvc", time.Now().UTC(), nil)
	require.NoError(t, repo.Deactivate(ctx, product.ID))

	_, err := repo.GetBySlug(ctx, "siphon-pvc")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// Admin lookups by id still see the row.
	got, err := repo.GetByID(ctx, product.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}
