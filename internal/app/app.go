package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coupon-selector/db"
	"github.com/xenking/coupon-selector/internal/codec"
	"github.com/xenking/coupon-selector/internal/domain/coupon"
	"github.com/xenking/coupon-selector/internal/handler"
	"github.com/xenking/coupon-selector/internal/storage/memory"
	"github.com/xenking/coupon-selector/internal/storage/postgres"
	"github.com/xenking/coupon-selector/pkg/health"
	"github.com/xenking/coupon-selector/pkg/httpmiddleware"
)

const serviceName = "coupon-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	catalog, closeCatalog, err := openCatalog(ctx, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer closeCatalog()

	if cfg.SeedDefaults {
		if err := seedCatalog(ctx, lg, catalog); err != nil {
			return errors.Wrap(err, "seed catalog")
		}
	}

	healthSvc.Start(ctx, cfg.Health.Interval)
	healthSvc.SetReady(true)

	selector, err := coupon.NewSelector(catalog,
		coupon.WithTracerProvider(m.TracerProvider()),
		coupon.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create selector")
	}

	mux := http.NewServeMux()
	healthSvc.Register(mux)
	handler.NewHandler(catalog, selector).Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins:          cfg.CORS.Origins,
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           cfg.CORS.MaxAge,
			}),
			httpmiddleware.Instrument(serviceName, m.TracerProvider(), m.MeterProvider()),
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

// openCatalog builds the configured catalog backend and registers its
// readiness check. The returned func releases backend resources.
func openCatalog(ctx context.Context, cfg *Config, h *health.Health) (coupon.Catalog, func(), error) {
	switch cfg.Storage {
	case StoragePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, errors.Wrap(err, "run migrations")
		}
		repo := postgres.NewCouponRepository(pool)
		h.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(repo), cfg.Health.checkOptions()...)
		return repo, pool.Close, nil
	default:
		catalog := memory.NewCatalog()
		h.AddReadinessCheck("catalog", time.Second, func(ctx context.Context) error {
			_, err := catalog.List(ctx)
			return err
		}, cfg.Health.checkOptions()...)
		return catalog, func() {}, nil
	}
}

// seedCatalog loads the embedded default coupons. Codes that already exist,
// for example in a persistent catalog after a restart, are left untouched.
func seedCatalog(ctx context.Context, lg *zap.Logger, catalog coupon.Catalog) error {
	coupons, err := codec.DecodeCoupons(db.SeedCoupons)
	if err != nil {
		return errors.Wrap(err, "decode seed")
	}
	created := 0
	for _, c := range coupons {
		switch err := catalog.Create(ctx, c); {
		case err == nil:
			created++
		case errors.Is(err, coupon.ErrDuplicateCode):
		default:
			return errors.Wrapf(err, "create %q", c.Code)
		}
	}
	lg.Info("Seeded catalog", zap.Int("created", created), zap.Int("total", len(coupons)))
	return nil
}
