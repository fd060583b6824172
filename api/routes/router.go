package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/plombea/plombea-backend/api/controllers"
	"github.com/plombea/plombea-backend/api/middleware"
	authsvc "github.com/plombea/plombea-backend/internal/auth"
	"github.com/plombea/plombea-backend/internal/cart"
	"github.com/plombea/plombea-backend/internal/catalog"
	checkoutsvc "github.com/plombea/plombea-backend/internal/checkout"
	"github.com/plombea/plombea-backend/internal/contact"
	"github.com/plombea/plombea-backend/internal/invoices"
	"github.com/plombea/plombea-backend/internal/orders"
	"github.com/plombea/plombea-backend/internal/users"
	"github.com/plombea/plombea-backend/pkg/auth/session"
	"github.com/plombea/plombea-backend/pkg/config"
	"github.com/plombea/plombea-backend/pkg/db"
	"github.com/plombea/plombea-backend/pkg/logger"
	"github.com/plombea/plombea-backend/pkg/metrics"
	"github.com/plombea/plombea-backend/pkg/redis"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          db.Pinger
	Redis       redis.Pinger
	Sessions    session.AccessSessionChecker
	AdminPolicy *users.AdminPolicy
	HTTPMetrics *metrics.HTTPMetrics
	Catalog     catalog.Service
	Cart        cart.Service
	Checkout    checkoutsvc.Service
	Auth        authsvc.Service
	Orders      orders.Service
	Invoices    invoices.Service
	Contact     contact.Service
}

func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	logg := d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(d.HTTPMetrics),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.DB, d.Redis))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ProductList(d.Catalog, logg))
			r.Get("/{slug}", controllers.ProductDetail(d.Catalog, logg))
		})

		r.Post("/contact", controllers.ContactSubmit(d.Contact, logg))

		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.GuestKey()).Post("/login", controllers.AuthLogin(d.Auth, d.Cart, logg))
			r.Post("/register", controllers.AuthRegister(d.Auth, logg))
			r.Post("/refresh", controllers.AuthRefresh(d.Auth, logg))
			r.Post("/password-reset", controllers.AuthPasswordResetRequest(d.Auth, logg))
			r.Post("/password-reset/confirm", controllers.AuthPasswordResetConfirm(d.Auth, logg))
			r.Post("/verify-email", controllers.AuthVerifyEmail(d.Auth, logg))
			r.Post("/verify-email/resend", controllers.AuthResendVerification(d.Auth, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(cfg.JWT, d.Sessions, logg))
				r.Post("/logout", controllers.AuthLogout(d.Auth, logg))
				r.Post("/2fa/enable", controllers.AuthEnable2FA(d.Auth, logg))
				r.Post("/2fa/verify", controllers.AuthVerify2FA(d.Auth, logg))
				r.Post("/2fa/disable", controllers.AuthDisable2FA(d.Auth, logg))
			})
		})

		r.Route("/me", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, d.Sessions, logg))
			r.Get("/", controllers.ProfileFetch(d.Auth, logg))
			r.Put("/", controllers.ProfileUpdate(d.Auth, logg))
		})

		// Cart and checkout serve both guests and signed-in users.
		r.Group(func(r chi.Router) {
			r.Use(
				middleware.OptionalAuth(cfg.JWT, d.Sessions, logg),
				middleware.GuestKey(),
			)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartFetch(d.Cart, logg))
				r.Post("/items", controllers.CartAddItem(d.Cart, logg))
				r.Put("/items/{itemId}", controllers.CartUpdateItem(d.Cart, logg))
				r.Delete("/items/{itemId}", controllers.CartRemoveItem(d.Cart, logg))
				r.Delete("/", controllers.CartClear(d.Cart, logg))
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Post("/", controllers.CheckoutStart(d.Checkout, logg))
				r.Route("/{sessionId}", func(r chi.Router) {
					r.Get("/", controllers.CheckoutFetch(d.Checkout, logg))
					r.Post("/billing", controllers.CheckoutSubmitBilling(d.Checkout, logg))
					r.Post("/shipping", controllers.CheckoutSubmitShipping(d.Checkout, logg))
					r.Post("/back", controllers.CheckoutBack(d.Checkout, logg))
					r.Post("/payment-intent", controllers.CheckoutPaymentIntent(d.Checkout, logg))
					r.Post("/confirm", controllers.CheckoutConfirm(d.Checkout, logg))
				})
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, d.Sessions, logg))
			r.Get("/", controllers.OrderList(d.Orders, logg))
			r.Get("/{orderNumber}", controllers.OrderDetail(d.Orders, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(
			middleware.Auth(cfg.JWT, d.Sessions, logg),
			middleware.RequireAdmin(d.AdminPolicy, logg),
		)

		r.Route("/products", func(r chi.Router) {
			r.Post("/", controllers.AdminProductCreate(d.Catalog, logg))
			r.Put("/{productId}", controllers.AdminProductUpdate(d.Catalog, logg))
			r.Delete("/{productId}", controllers.AdminProductDeactivate(d.Catalog, logg))
			r.Post("/{productId}/image", controllers.AdminProductImageUpload(d.Invoices, logg))
		})

		r.Post("/logo", controllers.AdminLogoUpload(d.Invoices, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.AdminOrderList(d.Orders, logg))
			r.Route("/{orderNumber}", func(r chi.Router) {
				r.Get("/", controllers.AdminOrderDetail(d.Orders, logg))
				r.Patch("/status", controllers.AdminOrderUpdateStatus(d.Orders, logg))
				r.Post("/invoice", controllers.AdminInvoiceUpload(d.Invoices, logg))
				r.Get("/invoice", controllers.AdminInvoiceDownload(d.Invoices, logg))
			})
		})
	})

	return r
}
