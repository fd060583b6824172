package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/plombea/plombea-backend/pkg/config"
	"github.com/plombea/plombea-backend/pkg/db/models"
	pkgerrors "github.com/plombea/plombea-backend/pkg/errors"
	"github.com/plombea/plombea-backend/pkg/logger"
	"github.com/plombea/plombea-backend/pkg/pagination"
)

type productStore interface {
	List(ctx context.Context, filter ListFilter) ([]models.Product, error)
	GetBySlug(ctx context.Context, slug string) (*models.Product, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error)
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, product *models.Product) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type catalogCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CatalogCacheKey(parts ...string) string
}

// ListQuery carries the storefront listing inputs.
type ListQuery struct {
	Category string
	Brand    string
	Search   string
	Cursor   string
	Limit    int
}

// Page is one page of catalog results.
type Page struct {
	Products   []models.Product `json:"products"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// ProductInput is the admin create/update payload after validation.
type ProductInput struct {
	Slug           string
	SKU            string
	Name           string
	Description    string
	Brand          string
	Category       string
	PriceCents     int64
	SalePriceCents *int64
	WeightGrams    int
	Dimensions     string
	Material       string
	Images         []string
	Bullets        []string
	ReferralLinks  map[string]string
	Stock          int
	ManageStock    bool
	Active         *bool
}

// Service exposes catalog reads for the storefront and writes for admins.
type Service interface {
	List(ctx context.Context, query ListQuery) (*Page, error)
	GetBySlug(ctx context.Context, slug string) (*models.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error)
	CreateProduct(ctx context.Context, input ProductInput) (*models.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, input ProductInput) (*models.Product, error)
	DeactivateProduct(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo     productStore
	cache    catalogCache
	cacheTTL time.Duration
	logg     *logger.Logger
}

// NewService builds the catalog service backed by the provided stack.
func NewService(repo productStore, cache catalogCache, cfg config.CatalogConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if cache == nil {
		return nil, fmt.Errorf("cache client required")
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &service{repo: repo, cache: cache, cacheTTL: ttl, logg: logg}, nil
}

// List returns one page of active products. Pages are served from cache for
// the configured TTL; a cache failure falls through to the database.
func (s *service) List(ctx context.Context, query ListQuery) (*Page, error) {
	key := s.cache.CatalogCacheKey("list", listFingerprint(query))
	if cached, err := s.cache.Get(ctx, key); err == nil && cached != "" {
		var page Page
		if err := json.Unmarshal([]byte(cached), &page); err == nil {
			return &page, nil
		}
	}

	cursor, err := pagination.ParseCursor(query.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(query.Limit)
	rows, err := s.repo.List(ctx, ListFilter{
		Category: query.Category,
		Brand:    query.Brand,
		Search:   query.Search,
		Cursor:   cursor,
		Limit:    limit,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}

	page := &Page{Products: rows}
	if len(rows) > limit {
		page.Products = rows[:limit]
		last := page.Products[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	s.writeCache(ctx, key, page)
	return page, nil
}

// GetBySlug returns one active product, served from cache when fresh.
func (s *service) GetBySlug(ctx context.Context, slug string) (*models.Product, error) {
	slug = strings.TrimSpace(strings.ToLower(slug))
	if slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug is required")
	}

	key := s.cache.CatalogCacheKey("slug", slug)
	if cached, err := s.cache.Get(ctx, key); err == nil && cached != "" {
		var product models.Product
		if err := json.Unmarshal([]byte(cached), &product); err == nil {
			return &product, nil
		}
	}

	product, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	s.writeCache(ctx, key, product)
	return product, nil
}

// GetProduct loads a product by id, bypassing the cache. Cart and checkout
// pricing always read the live row.
func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

// GetVariant loads a variant after checking it belongs to the product.
func (s *service) GetVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error) {
	if productID == uuid.Nil || variantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product and variant ids are required")
	}
	variant, err := s.repo.GetVariant(ctx, productID, variantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
	}
	return variant, nil
}

// CreateProduct inserts a new listing.
func (s *service) CreateProduct(ctx context.Context, input ProductInput) (*models.Product, error) {
	if err := validateProductInput(input); err != nil {
		return nil, err
	}

	product := &models.Product{
		Slug:           strings.TrimSpace(strings.ToLower(input.Slug)),
		SKU:            strings.TrimSpace(input.SKU),
		Name:           strings.TrimSpace(input.Name),
		Description:    input.Description,
		Brand:          strings.TrimSpace(input.Brand),
		Category:       strings.TrimSpace(input.Category),
		PriceCents:     input.PriceCents,
		SalePriceCents: input.SalePriceCents,
		WeightGrams:    input.WeightGrams,
		Dimensions:     strings.TrimSpace(input.Dimensions),
		Material:       strings.TrimSpace(input.Material),
		Images:         input.Images,
		Bullets:        input.Bullets,
		ReferralLinks:  input.ReferralLinks,
		Stock:          input.Stock,
		ManageStock:    input.ManageStock,
		Active:         true,
	}
	if input.Active != nil {
		product.Active = *input.Active
	}
	if product.WeightGrams <= 0 {
		product.WeightGrams = models.DefaultItemWeightGrams
	}

	if err := s.repo.Create(ctx, product); err != nil {
		if isUniqueViolation(err) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "slug already in use")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	return product, nil
}

// UpdateProduct applies the payload to an existing listing and drops the
// cached detail entry so storefront reads converge immediately.
func (s *service) UpdateProduct(ctx context.Context, id uuid.UUID, input ProductInput) (*models.Product, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if err := validateProductInput(input); err != nil {
		return nil, err
	}

	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	previousSlug := product.Slug
	product.Slug = strings.TrimSpace(strings.ToLower(input.Slug))
	product.SKU = strings.TrimSpace(input.SKU)
	product.Name = strings.TrimSpace(input.Name)
	product.Description = input.Description
	product.Brand = strings.TrimSpace(input.Brand)
	product.Category = strings.TrimSpace(input.Category)
	product.PriceCents = input.PriceCents
	product.SalePriceCents = input.SalePriceCents
	product.Dimensions = strings.TrimSpace(input.Dimensions)
	product.Material = strings.TrimSpace(input.Material)
	product.Images = input.Images
	product.Bullets = input.Bullets
	product.ReferralLinks = input.ReferralLinks
	product.Stock = input.Stock
	product.ManageStock = input.ManageStock
	if input.WeightGrams > 0 {
		product.WeightGrams = input.WeightGrams
	}
	if input.Active != nil {
		product.Active = *input.Active
	}

	if err := s.repo.Update(ctx, product); err != nil {
		if isUniqueViolation(err) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "slug already in use")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product")
	}

	s.dropCache(ctx, previousSlug, product.Slug)
	return product, nil
}

// DeactivateProduct hides a listing from the storefront.
func (s *service) DeactivateProduct(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	if err := s.repo.Deactivate(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate product")
	}

	s.dropCache(ctx, product.Slug)
	return nil
}

func (s *service) writeCache(ctx context.Context, key string, payload any) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, string(encoded), s.cacheTTL); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "key", key), "catalog cache write failed")
	}
}

func (s *service) dropCache(ctx context.Context, slugs ...string) {
	keys := make([]string, 0, len(slugs))
	seen := map[string]struct{}{}
	for _, slug := range slugs {
		if slug == "" {
			continue
		}
		key := s.cache.CatalogCacheKey("slug", slug)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return
	}
	if err := s.cache.Del(ctx, keys...); err != nil && s.logg != nil {
		s.logg.Warn(ctx, "catalog cache invalidation failed")
	}
}

func validateProductInput(input ProductInput) error {
	if strings.TrimSpace(input.Slug) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "slug is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if input.PriceCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	}
	if input.SalePriceCents != nil && (*input.SalePriceCents <= 0 || *input.SalePriceCents >= input.PriceCents) {
		return pkgerrors.New(pkgerrors.CodeValidation, "sale price must be positive and below the list price")
	}
	if input.Stock < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock cannot be negative")
	}
	return nil
}

func listFingerprint(query ListQuery) string {
	raw := fmt.Sprintf("cat=%s|brand=%s|q=%s|cur=%s|lim=%d",
		strings.ToLower(strings.TrimSpace(query.Category)),
		strings.ToLower(strings.TrimSpace(query.Brand)),
		strings.ToLower(strings.TrimSpace(query.Search)),
		query.Cursor,
		pagination.NormalizeLimit(query.Limit),
	)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:8])
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
