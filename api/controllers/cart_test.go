package controllers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plombea/plombea-backend/api/middleware"
	"github.com/plombea/plombea-backend/internal/cart"
)

type stubCartService struct {
	view      *cart.View
	lastOwner cart.Owner
	lastAdd   cart.AddInput
	err       error
}

func (s *stubCartService) Get(_ context.Context, owner cart.Owner) (*cart.View, error) {
	s.lastOwner = owner
	return s.view, s.err
}

func (s *stubCartService) AddItem(_ context.Context, owner cart.Owner, input cart.AddInput) (*cart.View, error) {
	s.lastOwner = owner
	s.lastAdd = input
	return s.view, s.err
}

func (s *stubCartService) UpdateItem(_ context.Context, owner cart.Owner, _ uuid.UUID, _ int) (*cart.View, error) {
	s.lastOwner = owner
	return s.view, s.err
}

func (s *stubCartService) RemoveItem(_ context.Context, owner cart.Owner, _ uuid.UUID) (*cart.View, error) {
	s.lastOwner = owner
	return s.view, s.err
}

func (s *stubCartService) Clear(_ context.Context, owner cart.Owner) error {
	s.lastOwner = owner
	return s.err
}

func (s *stubCartService) MergeGuestCart(_ context.Context, _ uuid.UUID, _ string) (*cart.View, error) {
	return s.view, s.err
}

func TestCartFetchResolvesGuestOwner(t *testing.T) {
	svc := &stubCartService{view: &cart.View{}}
	handler := CartFetch(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req = req.WithContext(middleware.WithGuestKey(req.Context(), "guest-42"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "guest-42", svc.lastOwner.GuestKey)
	assert.Nil(t, svc.lastOwner.UserID)
}

func TestCartFetchPrefersAuthenticatedUser(t *testing.T) {
	svc := &stubCartService{view: &cart.View{}}
	handler := CartFetch(svc, nil)

	userID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithGuestKey(ctx, "guest-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(ctx))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastOwner.UserID)
	assert.Equal(t, userID, *svc.lastOwner.UserID)
	assert.Empty(t, svc.lastOwner.GuestKey)
}

func TestCartFetchWithoutOwner(t *testing.T) {
	handler := CartFetch(&stubCartService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCartAddItemDecodesPayload(t *testing.T) {
	svc := &stubCartService{view: &cart.View{}}
	handler := CartAddItem(svc, nil)

	productID := uuid.New()
	body := []byte(`{"product_id":"` + productID.String() + `","quantity":3}`)
	req := httptest.NewRequest(http.MethodPost, "/cart/items", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(middleware.WithGuestKey(req.Context(), "guest-42"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, productID, svc.lastAdd.ProductID)
	assert.Equal(t, 3, svc.lastAdd.Quantity)
	assert.Nil(t, svc.lastAdd.VariantID)
}

func TestCartAddItemPassesZeroQuantityThrough(t *testing.T) {
	svc := &stubCartService{view: &cart.View{}}
	handler := CartAddItem(svc, nil)

	body := []byte(`{"product_id":"` + uuid.NewString() + `","quantity":0}`)
	req := httptest.NewRequest(http.MethodPost, "/cart/items", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(middleware.WithGuestKey(req.Context(), "guest-42"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, svc.lastAdd.Quantity)
}

func TestCartAddItemRejectsBadProductID(t *testing.T) {
	handler := CartAddItem(&stubCartService{}, nil)

	body := []byte(`{"product_id":"not-a-uuid","quantity":1}`)
	req := httptest.NewRequest(http.MethodPost, "/cart/items", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(middleware.WithGuestKey(req.Context(), "guest-42"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
