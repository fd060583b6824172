package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/plombea/plombea-backend/pkg/config"
	"github.com/plombea/plombea-backend/pkg/db/models"
	pkgerrors "github.com/plombea/plombea-backend/pkg/errors"
)

type stubCache struct {
	entries map[string]string
	ttls    map[string]time.Duration
	deleted []string
	setErr  error
}

func newStubCache() *stubCache {
	return &stubCache{entries: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *stubCache) Get(_ context.Context, key string) (string, error) {
	if value, ok := c.entries[key]; ok {
		return value, nil
	}
	return "", errors.New("cache miss")
}

func (c *stubCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[key] = value.(string)
	c.ttls[key] = ttl
	return nil
}

func (c *stubCache) Del(_ context.Context, keys ...string) error {
	c.deleted = append(c.deleted, keys...)
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

func (c *stubCache) CatalogCacheKey(parts ...string) string {
	return "plombea:cache:catalog:" + strings.Join(parts, ":")
}

type stubProductStore struct {
	products  map[uuid.UUID]*models.Product
	bySlug    map[string]*models.Product
	listRows  []models.Product
	listCalls int
	createErr error
}

func newStubProductStore() *stubProductStore {
	return &stubProductStore{
		products: map[uuid.UUID]*models.Product{},
		bySlug:   map[string]*models.Product{},
	}
}

func (s *stubProductStore) add(p *models.Product) {
	s.products[p.ID] = p
	s.bySlug[p.Slug] = p
}

func (s *stubProductStore) List(_ context.Context, _ ListFilter) ([]models.Product, error) {
	s.listCalls++
	return s.listRows, nil
}

func (s *stubProductStore) GetBySlug(_ context.Context, slug string) (*models.Product, error) {
	if p, ok := s.bySlug[slug]; ok && p.Active {
		return p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubProductStore) GetByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	if p, ok := s.products[id]; ok {
		return p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubProductStore) GetVariant(_ context.Context, _, _ uuid.UUID) (*models.ProductVariant, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubProductStore) Create(_ context.Context, p *models.Product) error {
	if s.createErr != nil {
		return s.createErr
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.add(p)
	return nil
}

func (s *stubProductStore) Update(_ context.Context, p *models.Product) error {
	s.add(p)
	return nil
}

func (s *stubProductStore) Deactivate(_ context.Context, id uuid.UUID) error {
	if p, ok := s.products[id]; ok {
		p.Active = false
	}
	return nil
}

func newTestService(t *testing.T, store *stubProductStore, cache *stubCache) Service {
	t.Helper()
	svc, err := NewService(store, cache, config.CatalogConfig{CacheTTL: 60 * time.Second}, nil)
	require.NoError(t, err)
	return svc
}

func TestListCachesPages(t *testing.T) {
	store := newStubProductStore()
	store.listRows = []models.Product{
		{ID: uuid.New(), Slug: "coude-cuivre", CreatedAt: time.Now().UTC()},
	}
	cache := newStubCache()
	svc := newTestService(t, store, cache)

	page, err := svc.List(context.Background(), ListQuery{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Products, 1)
	assert.Empty(t, page.NextCursor)
	assert.Equal(t, 1, store.listCalls)

	// Second read is served from cache.
	page, err = svc.List(context.Background(), ListQuery{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Products, 1)
	assert.Equal(t, 1, store.listCalls)

	for _, ttl := range cache.ttls {
		assert.Equal(t, 60*time.Second, ttl)
	}
}

func TestListEmitsNextCursorOnFullPage(t *testing.T) {
	store := newStubProductStore()
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		store.listRows = append(store.listRows, models.Product{
			ID:        uuid.New(),
			CreatedAt: now.Add(-time.Duration(i) * time.Minute),
		})
	}
	svc := newTestService(t, store, newStubCache())

	page, err := svc.List(context.Background(), ListQuery{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Products, 2)
	assert.NotEmpty(t, page.NextCursor)
}

func TestListRejectsBadCursor(t *testing.T) {
	svc := newTestService(t, newStubProductStore(), newStubCache())

	_, err := svc.List(context.Background(), ListQuery{Cursor: "not-base64!!"})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestListSurvivesCacheWriteFailure(t *testing.T) {
	store := newStubProductStore()
	store.listRows = []models.Product{{ID: uuid.New()}}
	cache := newStubCache()
	cache.setErr = errors.New("redis down")
	svc := newTestService(t, store, cache)

	page, err := svc.List(context.Background(), ListQuery{})
	require.NoError(t, err)
	assert.Len(t, page.Products, 1)
}

func TestGetBySlugCachesAndMapsNotFound(t *testing.T) {
	store := newStubProductStore()
	product := &models.Product{ID: uuid.New(), Slug: "vanne-pvc", Active: true, PriceCents: 2490}
	store.add(product)
	cache := newStubCache()
	svc := newTestService(t, store, cache)

	got, err := svc.GetBySlug(context.Background(), "Vanne-PVC")
	require.NoError(t, err)
	assert.Equal(t, product.ID, got.ID)

	cached, ok := cache.entries[cache.CatalogCacheKey("slug", "vanne-pvc")]
	require.True(t, ok)
	var decoded models.Product
	require.NoError(t, json.Unmarshal([]byte(cached), &decoded))
	assert.Equal(t, product.ID, decoded.ID)

	_, err = svc.GetBySlug(context.Background(), "inconnu")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestCreateProductValidatesAndDefaultsWeight(t *testing.T) {
	store := newStubProductStore()
	svc := newTestService(t, store, newStubCache())

	_, err := svc.CreateProduct(context.Background(), ProductInput{Name: "Coude"})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	created, err := svc.CreateProduct(context.Background(), ProductInput{
		Slug:       "Coude-Cuivre",
		Name:       "Coude cuivre 90",
		PriceCents: 390,
		Stock:      50,
	})
	require.NoError(t, err)
	assert.Equal(t, "coude-cuivre", created.Slug)
	assert.Equal(t, models.DefaultItemWeightGrams, created.WeightGrams)
	assert.True(t, created.Active)
}

func TestCreateProductRejectsBadSalePrice(t *testing.T) {
	store := newStubProductStore()
	svc := newTestService(t, store, newStubCache())

	sale := int64(500)
	_, err := svc.CreateProduct(context.Background(), ProductInput{
		Slug:           "mitigeur-laiton",
		Name:           "Mitigeur laiton",
		PriceCents:     400,
		SalePriceCents: &sale,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	sale = 300
	created, err := svc.CreateProduct(context.Background(), ProductInput{
		Slug:           "mitigeur-laiton",
		Name:           "Mitigeur laiton",
		PriceCents:     400,
		SalePriceCents: &sale,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(300), created.EffectivePriceCents())
}

func TestCreateProductMapsUniqueViolation(t *testing.T) {
	store := newStubProductStore()
	store.createErr = errors.New(`duplicate key value violates unique constraint "idx_products_slug"`)
	svc := newTestService(t, store, newStubCache())

	_, err := svc.CreateProduct(context.Background(), ProductInput{
		Slug:       "coude-cuivre",
		Name:       "Coude",
		PriceCents: 390,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
}

func TestUpdateProductDropsCachedDetail(t *testing.T) {
	store := newStubProductStore()
	product := &models.Product{ID: uuid.New(), Slug: "vanne-pvc", Name: "Vanne", Active: true, PriceCents: 2490}
	store.add(product)
	cache := newStubCache()
	svc := newTestService(t, store, cache)

	// Warm the cache, then rename the slug.
	_, err := svc.GetBySlug(context.Background(), "vanne-pvc")
	require.NoError(t, err)

	updated, err := svc.UpdateProduct(context.Background(), product.ID, ProductInput{
		Slug:       "vanne-pvc-32",
		Name:       "Vanne PVC 32",
		PriceCents: 2590,
	})
	require.NoError(t, err)
	assert.Equal(t, "vanne-pvc-32", updated.Slug)
	assert.Contains(t, cache.deleted, cache.CatalogCacheKey("slug", "vanne-pvc"))
}

func TestDeactivateProduct(t *testing.T) {
	store := newStubProductStore()
	product := &models.Product{ID: uuid.New(), Slug: "siphon", Active: true}
	store.add(product)
	cache := newStubCache()
	svc := newTestService(t, store, cache)

	require.NoError(t, svc.DeactivateProduct(context.Background(), product.ID))
	assert.False(t, product.Active)
	assert.Contains(t, cache.deleted, cache.CatalogCacheKey("slug", "siphon"))

	err := svc.DeactivateProduct(context.Background(), uuid.New())
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}
