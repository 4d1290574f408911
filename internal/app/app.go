// Package app wires configuration, storage, domain services and the HTTP
// server of the POS API.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/nusa-pos/internal/domain/customer"
	"github.com/xenking/nusa-pos/internal/domain/loyalty"
	"github.com/xenking/nusa-pos/internal/domain/order"
	"github.com/xenking/nusa-pos/internal/domain/product"
	"github.com/xenking/nusa-pos/internal/domain/voucher"
	"github.com/xenking/nusa-pos/internal/handler"
	"github.com/xenking/nusa-pos/internal/idempotency"
	"github.com/xenking/nusa-pos/internal/seed"
	"github.com/xenking/nusa-pos/internal/storage/memory"
	"github.com/xenking/nusa-pos/internal/storage/postgres"
	"github.com/xenking/nusa-pos/pkg/health"
	"github.com/xenking/nusa-pos/pkg/httpmiddleware"
)

// Storage is the set of repositories the services run on.
type Storage struct {
	Products  product.Repository
	Vouchers  voucher.Repository
	Customers customer.Repository
	Orders    order.Repository

	// Ping is nil for backends without a connection to check.
	Ping  health.Pinger
	Close func()
}

// OpenStorage opens the configured backend. The postgres schema is migrated
// on open. The seed file, if any, is applied to either backend.
func OpenStorage(ctx context.Context, cfg *Config) (*Storage, error) {
	var (
		s    *Storage
		sink seed.Sink
	)
	switch cfg.Storage {
	case StorageMemory:
		m := memory.New()
		s = &Storage{
			Products:  m.Products(),
			Vouchers:  m.Vouchers(),
			Customers: m.Customers(),
			Orders:    m.Orders(),
			Close:     func() {},
		}
		sink = m
	case StoragePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		pg := postgres.NewStore(pool)
		s = &Storage{
			Products:  pg.Products,
			Vouchers:  pg.Vouchers,
			Customers: pg.Customers,
			Orders:    pg.Orders,
			Ping:      pool,
			Close:     pool.Close,
		}
		sink = pg
	default:
		return nil, errors.Errorf("unknown storage %q", cfg.Storage)
	}

	if cfg.SeedFile != "" {
		if err := seed.LoadFile(ctx, sink, cfg.SeedFile); err != nil {
			s.Close()
			return nil, errors.Wrap(err, "seed storage")
		}
	}
	return s, nil
}

// Services holds the domain services behind the API.
type Services struct {
	Policy    loyalty.Policy
	Orders    *order.Service
	Customers *customer.Service
}

// NewServices builds the domain services on top of s.
func NewServices(cfg *Config, s *Storage, mp metric.MeterProvider, tp trace.TracerProvider) (*Services, error) {
	policy, err := loyalty.NewPolicy(cfg.Loyalty.EarnRate, cfg.Loyalty.PointValue)
	if err != nil {
		return nil, errors.Wrap(err, "loyalty policy")
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, errors.Wrap(err, "load timezone")
	}

	orders, err := order.NewService(
		s.Products,
		voucher.NewRepoValidator(s.Vouchers),
		s.Orders,
		policy,
		order.WithKeyFilter(idempotency.NewFilter(cfg.Idempotency.Capacity, cfg.Idempotency.FalsePositive)),
		order.WithLocation(loc),
		order.WithTelemetry(mp, tp),
	)
	if err != nil {
		return nil, errors.Wrap(err, "order service")
	}

	return &Services{
		Policy:    policy,
		Orders:    orders,
		Customers: customer.NewService(s.Customers, policy),
	}, nil
}

// NewRouter mounts the health probes and the /api routes.
func NewRouter(s *Storage, svc *Services, hs *health.Health) chi.Router {
	api := handler.New(s.Products, svc.Orders, svc.Customers, svc.Policy)
	r := api.Router()
	r.Get("/livez", hs.LiveEndpoint)
	r.Get("/readyz", hs.ReadyEndpoint)
	return r
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
		zap.String("timezone", cfg.Timezone),
	)

	store, err := OpenStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := NewServices(cfg, store, m.MeterProvider(), m.TracerProvider())
	if err != nil {
		return err
	}

	healthSvc := health.New()
	if store.Ping != nil {
		healthSvc.Add(health.Check{
			Name:    "postgres",
			Kind:    health.Readiness,
			Timeout: 5 * time.Second,
			Func:    health.PingCheck(store.Ping),
		})
	}
	healthSvc.Add(health.Check{
		Name: "goroutines",
		Kind: health.Liveness,
		Func: health.GoroutineCountCheck(10000),
	})
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	mux := NewRouter(store, svc, healthSvc)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(
			httpmiddleware.Wrap(mux,
				httpmiddleware.InjectLogger(zctx.From(ctx)),
				httpmiddleware.RequestID(),
				httpmiddleware.LogRequests(),
				httpmiddleware.Recovery(),
				httpmiddleware.CORS(httpmiddleware.CORSConfig{
					Origins: cfg.CORS.Origins,
					Headers: []string{
						"Content-Type",
						idempotency.Header,
						httpmiddleware.HeaderRequestID,
						httpmiddleware.HeaderTerminalID,
					},
					Expose:      []string{httpmiddleware.HeaderRequestID},
					Credentials: cfg.CORS.AllowCredentials,
					MaxAge:      86400,
				}),
				httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
					Max:    cfg.RateLimit.Max,
					Window: cfg.RateLimit.Window,
				}),
			),
			"pos-api",
			otelhttp.WithMeterProvider(m.MeterProvider()),
			otelhttp.WithTracerProvider(m.TracerProvider()),
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
