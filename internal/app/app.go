package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/feastly/teamcart/internal/api"
	"github.com/feastly/teamcart/internal/events"
	"github.com/feastly/teamcart/internal/notify"
	"github.com/feastly/teamcart/internal/payment"
	"github.com/feastly/teamcart/internal/postgres"
	"github.com/feastly/teamcart/internal/redisstore"
	"github.com/feastly/teamcart/internal/service"
	"github.com/feastly/teamcart/internal/sweeper"
	"github.com/feastly/teamcart/pkg/health"
	"github.com/feastly/teamcart/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server plus the background
// loops (outbox dispatcher, expiration sweeper), and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Redis client for the live view store.
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return errors.Wrap(err, "parse redis URL")
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)

	// Stores and repositories.
	cartRepo := postgres.NewTeamCartRepository(pool)
	menuRepo := postgres.NewMenuRepository(pool)
	outbox := postgres.NewOutboxStore(pool)
	inbox := postgres.NewInboxStore(pool)
	uow := postgres.NewUnitOfWork(pool)
	viewStore := redisstore.NewViewStore(redisClient, cfg.ViewStore.TTL)

	// Side channels and the payment provider.
	notifier := notify.LogNotifier{}
	var provider payment.Provider = payment.StubProvider{}

	// Application service.
	svc := service.New(
		service.Config{CartTTL: cfg.Cart.TTL},
		cartRepo, menuRepo, viewStore, outbox, uow, provider,
	)

	// Outbox dispatcher with the idempotent view projector.
	dispatcher := events.NewDispatcher(events.DispatcherConfig{
		Tick:      cfg.Dispatcher.Tick,
		BatchSize: cfg.Dispatcher.BatchSize,
	}, outbox)
	projector := events.NewViewProjector(cartRepo, viewStore, notifier)
	dispatcher.Register(events.Idempotent(events.ViewProjectorName, inbox, uow, projector.Refresh))

	// Expiration sweeper.
	sweep := sweeper.New(sweeper.Config{
		Cadence:     cfg.Sweeper.Cadence,
		BatchSize:   cfg.Sweeper.BatchSize,
		GraceWindow: cfg.Sweeper.GraceWindow,
	}, cartRepo, svc)

	// HTTP surface: health endpoints + cart API under /api.
	h := api.NewHandler(svc, []byte(cfg.PaymentWebhookSecret))
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", http.StripPrefix("/api", h.Routes()))

	handler := httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", "X-User-ID", "X-Display-Name"},
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
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(handler, "teamcart-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := dispatcher.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := sweep.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-gctx.Done()
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

	healthSvc.SetReady(true)
	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return g.Wait()
}
