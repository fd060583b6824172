package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/plombea/plombea-backend/pkg/db/models"
	"github.com/plombea/plombea-backend/pkg/pagination"
)

// ListFilter narrows the catalog listing.
type ListFilter struct {
	Category string
	Brand    string
	Search   string
	Cursor   *pagination.Cursor
	Limit    int
}

// ProductRepository manages catalog persistence.
type ProductRepository struct {
	db *gorm.DB
}

// NewProductRepository binds the repository to the provided DB handle.
func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *ProductRepository) WithTx(tx *gorm.DB) *ProductRepository {
	if tx == nil {
		return r
	}
	return &ProductRepository{db: tx}
}

// List returns active products matching the filter, newest first, limit+1 rows
// so callers can detect the next page.
func (r *ProductRepository) List(ctx context.Context, filter ListFilter) ([]models.Product, error) {
	query := r.db.WithContext(ctx).
		Preload("Variants").
		Where("active = ?", true)

	if category := strings.TrimSpace(filter.Category); category != "" {
		query = query.Where("category = ?", category)
	}
	if brand := strings.TrimSpace(filter.Brand); brand != "" {
		query = query.Where("brand = ?", brand)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("lower(name) LIKE ? OR lower(description) LIKE ?", pattern, pattern)
	}
	if filter.Cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID,
		)
	}

	var rows []models.Product
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(filter.Limit)).
		Find(&rows).Error
	return rows, err
}

// GetBySlug loads one active product with its variants.
func (r *ProductRepository) GetBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var row models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants").
		Where("slug = ? AND active = ?", slug, true).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetByID loads a product regardless of its active flag.
func (r *ProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var row models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants").
		Where("id = ?", id).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetVariant loads a variant and checks it belongs to the product.
func (r *ProductRepository) GetVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error) {
	var row models.ProductVariant
	err := r.db.WithContext(ctx).
		Where("id = ? AND product_id = ?", variantID, productID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, product *models.Product) error {
	if product == nil {
		return errors.New("product is required")
	}
	return r.db.WithContext(ctx).Create(product).Error
}

// Update saves the provided product snapshot.
func (r *ProductRepository) Update(ctx context.Context, product *models.Product) error {
	if product == nil {
		return errors.New("product is required")
	}
	return r.db.WithContext(ctx).Save(product).Error
}

// Deactivate soft-hides a product from the storefront.
func (r *ProductRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Update("active", false).Error
}
