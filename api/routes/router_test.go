package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authsvc "github.com/plombea/plombea-backend/internal/auth"
	"github.com/plombea/plombea-backend/internal/cart"
	"github.com/plombea/plombea-backend/internal/catalog"
	checkoutsvc "github.com/plombea/plombea-backend/internal/checkout"
	"github.com/plombea/plombea-backend/internal/contact"
	"github.com/plombea/plombea-backend/internal/invoices"
	"github.com/plombea/plombea-backend/internal/orders"
	"github.com/plombea/plombea-backend/internal/users"
	pkgAuth "github.com/plombea/plombea-backend/pkg/auth"
	"github.com/plombea/plombea-backend/pkg/auth/session"
	"github.com/plombea/plombea-backend/pkg/config"
	"github.com/plombea/plombea-backend/pkg/db/models"
	"github.com/plombea/plombea-backend/pkg/enums"
	"github.com/plombea/plombea-backend/pkg/types"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubSessions struct{}

func (stubSessions) HasSession(context.Context, string) (bool, error) { return true, nil }

type stubCatalog struct{}

func (stubCatalog) List(context.Context, catalog.ListQuery) (*catalog.Page, error) {
	return &catalog.Page{}, nil
}
func (stubCatalog) GetBySlug(context.Context, string) (*models.Product, error) {
	return &models.Product{}, nil
}
func (stubCatalog) GetProduct(context.Context, uuid.UUID) (*models.Product, error) {
	return &models.Product{}, nil
}
func (stubCatalog) GetVariant(context.Context, uuid.UUID, uuid.UUID) (*models.ProductVariant, error) {
	return &models.ProductVariant{}, nil
}
func (stubCatalog) CreateProduct(context.Context, catalog.ProductInput) (*models.Product, error) {
	return &models.Product{}, nil
}
func (stubCatalog) UpdateProduct(context.Context, uuid.UUID, catalog.ProductInput) (*models.Product, error) {
	return &models.Product{}, nil
}
func (stubCatalog) DeactivateProduct(context.Context, uuid.UUID) error { return nil }

type stubCart struct{}

func (stubCart) Get(context.Context, cart.Owner) (*cart.View, error) { return &cart.View{}, nil }
func (stubCart) AddItem(context.Context, cart.Owner, cart.AddInput) (*cart.View, error) {
	return &cart.View{}, nil
}
func (stubCart) UpdateItem(context.Context, cart.Owner, uuid.UUID, int) (*cart.View, error) {
	return &cart.View{}, nil
}
func (stubCart) RemoveItem(context.Context, cart.Owner, uuid.UUID) (*cart.View, error) {
	return &cart.View{}, nil
}
func (stubCart) Clear(context.Context, cart.Owner) error { return nil }
func (stubCart) MergeGuestCart(context.Context, uuid.UUID, string) (*cart.View, error) {
	return &cart.View{}, nil
}

type stubCheckout struct{}

func (stubCheckout) Start(context.Context, cart.Owner) (*models.CheckoutSession, error) {
	return &models.CheckoutSession{}, nil
}
func (stubCheckout) Get(context.Context, cart.Owner, uuid.UUID) (*models.CheckoutSession, error) {
	return &models.CheckoutSession{}, nil
}
func (stubCheckout) SubmitBilling(context.Context, cart.Owner, uuid.UUID, checkoutsvc.BillingInput) (*models.CheckoutSession, error) {
	return &models.CheckoutSession{}, nil
}
func (stubCheckout) SubmitShipping(context.Context, cart.Owner, uuid.UUID, checkoutsvc.ShippingInput) (*models.CheckoutSession, *checkoutsvc.Totals, error) {
	return &models.CheckoutSession{}, &checkoutsvc.Totals{}, nil
}
func (stubCheckout) Back(context.Context, cart.Owner, uuid.UUID, enums.CheckoutStep) (*models.CheckoutSession, error) {
	return &models.CheckoutSession{}, nil
}
func (stubCheckout) CreatePaymentIntent(context.Context, cart.Owner, uuid.UUID) (*checkoutsvc.PaymentIntentResult, error) {
	return &checkoutsvc.PaymentIntentResult{}, nil
}
func (stubCheckout) Confirm(context.Context, cart.Owner, uuid.UUID) (*checkoutsvc.ConfirmResult, error) {
	return &checkoutsvc.ConfirmResult{}, nil
}

type stubAuth struct{}

func (stubAuth) Register(context.Context, authsvc.RegisterInput) (*models.User, *authsvc.TokenPair, error) {
	return &models.User{}, &authsvc.TokenPair{}, nil
}
func (stubAuth) Login(context.Context, authsvc.LoginInput) (*models.User, *authsvc.TokenPair, error) {
	return &models.User{}, &authsvc.TokenPair{}, nil
}
func (stubAuth) Refresh(context.Context, string, string) (*authsvc.TokenPair, error) {
	return &authsvc.TokenPair{}, nil
}
func (stubAuth) Logout(context.Context, string) error                  { return nil }
func (stubAuth) RequestPasswordReset(context.Context, string) error    { return nil }
func (stubAuth) ConfirmPasswordReset(context.Context, string, string) error {
	return nil
}
func (stubAuth) ResendEmailVerification(context.Context, string) error { return nil }
func (stubAuth) VerifyEmail(context.Context, string) error             { return nil }
func (stubAuth) Enable2FA(context.Context, uuid.UUID) (string, error)  { return "secret", nil }
func (stubAuth) Verify2FA(context.Context, uuid.UUID, string) error    { return nil }
func (stubAuth) Disable2FA(context.Context, uuid.UUID, string) error   { return nil }
func (stubAuth) Profile(context.Context, uuid.UUID) (*models.User, error) {
	return &models.User{}, nil
}
func (stubAuth) UpdateProfile(context.Context, uuid.UUID, authsvc.ProfileInput) (*models.User, error) {
	return &models.User{}, nil
}

type stubOrders struct{}

func (stubOrders) ListMine(context.Context, uuid.UUID, orders.ListParams) (*orders.Page, error) {
	return &orders.Page{}, nil
}
func (stubOrders) GetMine(context.Context, uuid.UUID, string) (*models.Order, error) {
	return &models.Order{}, nil
}
func (stubOrders) ListAll(context.Context, orders.ListParams) (*orders.Page, error) {
	return &orders.Page{}, nil
}
func (stubOrders) Get(context.Context, string) (*models.Order, error) {
	return &models.Order{}, nil
}
func (stubOrders) UpdateStatus(context.Context, uuid.UUID, string, orders.StatusUpdateInput) (*models.Order, error) {
	return &models.Order{}, nil
}

type stubInvoices struct{}

var _ invoices.Service = stubInvoices{}

func (stubInvoices) Upload(context.Context, string, []byte) (*models.Invoice, error) {
	return &models.Invoice{}, nil
}
func (stubInvoices) Download(context.Context, string) (*models.Invoice, []byte, error) {
	return &models.Invoice{ContentType: "application/pdf"}, []byte("%PDF-1.7"), nil
}
func (stubInvoices) UploadProductImage(context.Context, uuid.UUID, string, []byte) (string, error) {
	return "products/x", nil
}
func (stubInvoices) UploadLogo(context.Context, []byte) (string, error) {
	return "assets/logo.png", nil
}

type stubContact struct{}

func (stubContact) Submit(context.Context, contact.SubmitInput) (*models.ContactMessage, error) {
	return &models.ContactMessage{}, nil
}

func testRouter(t *testing.T) (http.Handler, config.JWTConfig) {
	t.Helper()
	jwtCfg := config.JWTConfig{Secret: "secret", Issuer: "plombea", ExpirationMinutes: 10}
	cfg := &config.Config{
		App: config.AppConfig{Env: "test", Port: "8080"},
		JWT: jwtCfg,
	}
	handler := NewRouter(Deps{
		Config:      cfg,
		DB:          stubPinger{},
		Redis:       stubPinger{},
		Sessions:    stubSessions{},
		AdminPolicy: users.NewAdminPolicy(config.AdminConfig{}),
		Catalog:     stubCatalog{},
		Cart:        stubCart{},
		Checkout:    stubCheckout{},
		Auth:        stubAuth{},
		Orders:      stubOrders{},
		Invoices:    stubInvoices{},
		Contact:     stubContact{},
	})
	return handler, jwtCfg
}

func mintToken(t *testing.T, cfg config.JWTConfig, role enums.UserRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Email:  "artisan@chantier.fr",
		Role:   role,
		JTI:    session.NewAccessID(),
	})
	require.NoError(t, err)
	return token
}

func TestHealthLive(t *testing.T) {
	handler, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body types.SuccessEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "live", body.Data.(map[string]any)["status"])
}

func TestPublicCatalogNeedsNoAuth(t *testing.T) {
	handler, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCartServesGuestsWithHeader(t *testing.T) {
	handler, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("X-Guest-Key", "guest-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestOrdersRequireAuth(t *testing.T) {
	handler, jwtCfg := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, jwtCfg, enums.UserRoleUser))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutesRejectPlainUsers(t *testing.T) {
	handler, jwtCfg := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, jwtCfg, enums.UserRoleUser))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, jwtCfg, enums.UserRoleAdmin))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminLogoUpload(t *testing.T) {
	handler, jwtCfg := testRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/logo", strings.NewReader("png-bytes"))
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Authorization", "Bearer "+mintToken(t, jwtCfg, enums.UserRoleAdmin))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var body types.SuccessEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "assets/logo.png", body.Data.(map[string]any)["objectPath"])
}

func TestMetricsEndpointExposed(t *testing.T) {
	handler, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
