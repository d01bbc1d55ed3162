package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/cameroon-mark/internal/domain/analytics"
	"github.com/xenking/cameroon-mark/internal/domain/auth"
	"github.com/xenking/cameroon-mark/internal/domain/campaign"
	"github.com/xenking/cameroon-mark/internal/domain/discount"
	"github.com/xenking/cameroon-mark/internal/domain/event"
	"github.com/xenking/cameroon-mark/internal/domain/order"
	"github.com/xenking/cameroon-mark/internal/domain/product"
	"github.com/xenking/cameroon-mark/internal/domain/user"
	"github.com/xenking/cameroon-mark/internal/handler"
	"github.com/xenking/cameroon-mark/internal/notify"
	"github.com/xenking/cameroon-mark/internal/repository"
	"github.com/xenking/cameroon-mark/pkg/health"
	"github.com/xenking/cameroon-mark/pkg/httpmiddleware"
)

const serviceName = "cameroon-mark"

// Run creates all dependencies, starts the HTTP server and background jobs,
// and handles graceful shutdown. It is the single wiring point for the
// application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	return run(ctx, lg, m.MeterProvider(), m.TracerProvider(), cfg)
}

func run(ctx context.Context, lg *zap.Logger, mp metric.MeterProvider, tp trace.TracerProvider, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, cfg.Database.MaxConns)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	db := repository.NewDB(pool)

	// Health probes.
	monitor := health.NewMonitor()
	monitor.Register(health.Readiness, "postgres", health.PingCheck(db), health.WithTimeout(5*time.Second))
	monitor.Register(health.Liveness, "goroutines", health.GoroutineCheck(10000), health.WithTimeout(time.Second))

	// Repositories.
	var (
		users     = repository.NewUserRepository(db)
		products  = repository.NewProductRepository(db)
		codes     = repository.NewDiscountRepository(db)
		campaigns = repository.NewCampaignRepository(db)
		orders    = repository.NewOrderRepository(db)
		sales     = repository.NewAnalyticsRepository(db)
	)

	// Event delivery.
	var (
		notifier event.Notifier = notify.Log{}
		async    *notify.Async
	)
	if cfg.Notify.WebhookURL != "" {
		webhook := notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Timeout, mp, tp,
			notify.WithSecret(cfg.Notify.Secret),
		)
		async = notify.NewAsync(webhook, cfg.Notify.Workers, cfg.Notify.QueueSize, cfg.Notify.Timeout)
		notifier = notify.Multi{notify.Log{}, async}
	}

	// Domain services.
	authz := auth.NewAuthorizer()
	tokens := auth.NewTokens([]byte(cfg.JWT.Secret), cfg.JWT.TTL, cfg.JWT.Issuer)
	userService := user.NewService(users, tokens, authz, cfg.Password.BcryptCost)
	productService := product.NewService(products, authz)
	analyticsService := analytics.NewService(sales, authz)
	discountService := discount.NewService(codes, campaigns, authz)
	campaignService := campaign.NewService(campaigns, discountService, db, authz)
	orderService := order.NewService(
		orders,
		products,
		discount.NewValidator(codes),
		discount.NewUsageCounter(codes),
		db,
		authz,
		order.WithNotifier(notifier),
		order.WithMeterProvider(mp),
		order.WithTracerProvider(tp),
	)

	sweeper, err := NewSweeper(orderService, cfg.Orders.SweepSchedule, cfg.Orders.PendingTTL, cfg.Orders.SweepBatch)
	if err != nil {
		return err
	}

	// HTTP.
	h := handler.New(handler.Deps{
		Users:     userService,
		Products:  productService,
		Discounts: discountService,
		Campaigns: campaignService,
		Orders:    orderService,
		Analytics: analyticsService,
		Tokens:    tokens,
		Probes:    monitor,
	}, handler.Config{PaymentWebhookSecret: cfg.Payments.WebhookSecret})

	limiter := httpmiddleware.NewLimiter(httpmiddleware.RateLimitConfig{
		Max:    cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(
			h.Router(httpmiddleware.RouteLabels(), httpmiddleware.LogRequests()),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			limiter.Middleware(),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Instrument(serviceName, mp, tp),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return monitor.Run(gctx, 10*time.Second) })
	g.Go(func() error { return limiter.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })
	if async != nil {
		g.Go(func() error { return async.Run(gctx) })
	}

	// Graceful shutdown: wait for cancellation, drop readiness, drain, stop.
	g.Go(func() error {
		<-gctx.Done()
		monitor.SetServing(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	g.Go(func() error {
		monitor.SetServing(true)
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
