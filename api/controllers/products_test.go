package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plombea/plombea-backend/internal/catalog"
	"github.com/plombea/plombea-backend/pkg/db/models"
	pkgerrors "github.com/plombea/plombea-backend/pkg/errors"
	"github.com/plombea/plombea-backend/pkg/types"
)

type stubCatalog struct {
	page     *catalog.Page
	product  *models.Product
	lastList catalog.ListQuery
	lastSlug string
	err      error
}

func (s *stubCatalog) List(_ context.Context, query catalog.ListQuery) (*catalog.Page, error) {
	s.lastList = query
	return s.page, s.err
}

func (s *stubCatalog) GetBySlug(_ context.Context, slug string) (*models.Product, error) {
	s.lastSlug = slug
	if s.err != nil {
		return nil, s.err
	}
	return s.product, nil
}

func (s *stubCatalog) GetProduct(context.Context, uuid.UUID) (*models.Product, error) {
	return s.product, s.err
}

func (s *stubCatalog) GetVariant(context.Context, uuid.UUID, uuid.UUID) (*models.ProductVariant, error) {
	return nil, s.err
}

func (s *stubCatalog) CreateProduct(context.Context, catalog.ProductInput) (*models.Product, error) {
	return s.product, s.err
}

func (s *stubCatalog) UpdateProduct(context.Context, uuid.UUID, catalog.ProductInput) (*models.Product, error) {
	return s.product, s.err
}

func (s *stubCatalog) DeactivateProduct(context.Context, uuid.UUID) error {
	return s.err
}

func TestProductListPassesFilters(t *testing.T) {
	svc := &stubCatalog{page: &catalog.Page{}}
	handler := ProductList(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/products?category=raccords&brand=geberit&q=32mm&limit=10", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "raccords", svc.lastList.Category)
	assert.Equal(t, "geberit", svc.lastList.Brand)
	assert.Equal(t, "32mm", svc.lastList.Search)
	assert.Equal(t, 10, svc.lastList.Limit)
}

func TestProductListRejectsBadLimit(t *testing.T) {
	handler := ProductList(&stubCatalog{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/products?limit=nope", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProductDetail(t *testing.T) {
	svc := &stubCatalog{product: &models.Product{ID: uuid.New(), Slug: "raccord-laiton-32"}}
	router := chi.NewRouter()
	router.Get("/products/{slug}", ProductDetail(svc, nil))

	req := httptest.NewRequest(http.MethodGet, "/products/raccord-laiton-32", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "raccord-laiton-32", svc.lastSlug)
}

func TestProductDetailNotFound(t *testing.T) {
	svc := &stubCatalog{err: pkgerrors.New(pkgerrors.CodeNotFound, "product not found")}
	router := chi.NewRouter()
	router.Get("/products/{slug}", ProductDetail(svc, nil))

	req := httptest.NewRequest(http.MethodGet, "/products/disparu", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, string(pkgerrors.CodeNotFound), body.Error.Code)
}
