package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/cakekart/checkout-engine/internal/domain/cart"
	"github.com/cakekart/checkout-engine/internal/domain/checkout"
	"github.com/cakekart/checkout-engine/internal/domain/coupon"
	"github.com/cakekart/checkout-engine/internal/domain/order"
	"github.com/cakekart/checkout-engine/internal/domain/payment"
	"github.com/cakekart/checkout-engine/internal/handler"
	"github.com/cakekart/checkout-engine/internal/repository"
	"github.com/cakekart/checkout-engine/pkg/health"
	"github.com/cakekart/checkout-engine/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Pool connection gauge.
	meter := m.MeterProvider().Meter("cakekart.checkout-engine")
	if _, err := meter.Int64ObservableGauge("db.pool.connections",
		metric.WithDescription("pgx pool connections by state"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			stat := pool.Stat()
			o.Observe(int64(stat.AcquiredConns()), metric.WithAttributes(attribute.String("state", "acquired")))
			o.Observe(int64(stat.IdleConns()), metric.WithAttributes(attribute.String("state", "idle")))
			return nil
		}),
	); err != nil {
		return errors.Wrap(err, "register pool gauge")
	}

	ordersPlaced, err := meter.Int64Counter("orders.placed",
		metric.WithDescription("orders durably placed, by payment method"),
	)
	if err != nil {
		return errors.Wrap(err, "register orders counter")
	}

	// Repositories. The coupon repository is fronted by a bloom filter so
	// probing with made-up codes never reaches the database.
	cartRepo := repository.NewCartRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)
	idemRepo := repository.NewIdempotencyRepository(pool)

	couponStore := repository.NewCouponRepository(pool)
	couponRepo, err := repository.NewBloomCouponRepository(ctx, couponStore, couponStore)
	if err != nil {
		return errors.Wrap(err, "build coupon bloom filter")
	}

	// Coupons are inserted by seed and ingest runs, not by this process, so
	// the filter has to be rebuilt periodically to see them.
	go func() {
		ticker := time.NewTicker(cfg.Coupons.BloomRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := couponRepo.Refresh(ctx); err != nil {
					lg.Warn("Coupon filter refresh failed", zap.Error(err))
				}
			}
		}
	}()

	// Domain services.
	usagePolicy := coupon.UsagePolicy(cfg.Coupons.UsagePolicy)
	couponValidator := coupon.NewRepoValidator(couponRepo, usagePolicy)
	cartService := cart.NewService(cartRepo, couponValidator)

	var gateway payment.Gateway
	if cfg.Gateway.Demo {
		lg.Warn("Using demo payment gateway, results are synthesized")
		gateway = payment.NewDemoGateway(cfg.Gateway.KeySecret)
	} else {
		gateway = payment.NewHostedGateway(payment.HostedGatewayConfig{
			BaseURL:   cfg.Gateway.BaseURL,
			KeyID:     cfg.Gateway.KeyID,
			KeySecret: cfg.Gateway.KeySecret,
			Timeout:   cfg.Gateway.Timeout,
		}, lg.Named("gateway"))
	}

	orderService := order.NewService(
		orderRepo, paymentRepo, gateway, couponValidator, cartRepo, idemRepo,
		order.PricingConfig{
			FreeDeliveryThreshold: decimal.NewFromInt(int64(cfg.Pricing.FreeDeliveryThreshold)),
			DeliveryFee:           decimal.NewFromInt(int64(cfg.Pricing.DeliveryFee)),
			Currency:              cfg.Pricing.Currency,
		},
	)
	orderService.OnPlacement(func(ctx context.Context, method checkout.PaymentMethod) {
		ordersPlaced.Add(ctx, 1, metric.WithAttributes(attribute.String("method", string(method))))
	})

	// HTTP handlers: health endpoints + API routes on one server.
	securityHandler := handler.NewSecurityHandler(apikeyRepo, []byte(cfg.APIKeyPepper))
	h := handler.NewHandler(cartService, orderService, securityHandler)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", otelhttp.NewHandler(h.Routes(), "cakekart-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Idempotency-Key", "X-API-Key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
