package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/plombea/plombea-backend/api/routes"
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
	"github.com/plombea/plombea-backend/pkg/migrate"
	"github.com/plombea/plombea-backend/pkg/outbox"
	"github.com/plombea/plombea-backend/pkg/redis"
	"github.com/plombea/plombea-backend/pkg/storage/gcs"
	"github.com/plombea/plombea-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}
	intentClient := stripe.NewPaymentIntentClient(stripeClient)

	gcsClient, err := gcs.NewClient(context.Background(), cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap object storage", err)
		os.Exit(1)
	}
	defer func() {
		if err := gcsClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing object storage", err)
		}
	}()
	bucket := gcsClient.BucketHandle(cfg.GCS.BucketName)

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	productRepo := catalog.NewProductRepository(dbClient.DB())
	cartRepo := cart.NewRepository(dbClient.DB())
	orderRepo := orders.NewRepository(dbClient.DB())
	checkoutRepo := checkoutsvc.NewRepository(dbClient.DB())
	userRepo := users.NewRepository(dbClient.DB())
	tokenRepo := authsvc.NewTokenRepository(dbClient.DB())

	catalogService, err := catalog.NewService(productRepo, redisClient, cfg.Catalog, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	cartService, err := cart.NewService(cartRepo, dbClient, catalogService, redisClient, cfg.Checkout, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	checkoutService, err := checkoutsvc.NewService(checkoutRepo, orderRepo, cartService, dbClient, intentClient, outboxService, cfg.Checkout, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	orderService, err := orders.NewService(orderRepo, dbClient, outboxService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	authService, err := authsvc.NewService(userRepo, tokenRepo, sessionManager, redisClient, cfg.JWT, cfg.Password, cfg.AuthRateLimit, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	invoiceService, err := invoices.NewService(dbClient.DB(), orderRepo, dbClient, bucket, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create invoice service", err)
		os.Exit(1)
	}

	contactService, err := contact.NewService(dbClient.DB(), dbClient, outboxService, cfg.Contact, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create contact service", err)
		os.Exit(1)
	}

	handler := routes.NewRouter(routes.Deps{
		Config:      cfg,
		Logger:      logg,
		DB:          dbClient,
		Redis:       redisClient,
		Sessions:    sessionManager,
		AdminPolicy: users.NewAdminPolicy(cfg.Admin),
		HTTPMetrics: metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		Catalog:     catalogService,
		Cart:        cartService,
		Checkout:    checkoutService,
		Auth:        authService,
		Orders:      orderService,
		Invoices:    invoiceService,
		Contact:     contactService,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}
