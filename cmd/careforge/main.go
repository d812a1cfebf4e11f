package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	cfhttp "github.com/Strob0t/CareForge/internal/adapter/http"
	cfmcp "github.com/Strob0t/CareForge/internal/adapter/mcp"
	cfnats "github.com/Strob0t/CareForge/internal/adapter/nats"
	"github.com/Strob0t/CareForge/internal/adapter/natskv"
	"github.com/Strob0t/CareForge/internal/adapter/natsobj"
	cfotel "github.com/Strob0t/CareForge/internal/adapter/otel"
	"github.com/Strob0t/CareForge/internal/adapter/postgres"
	"github.com/Strob0t/CareForge/internal/adapter/ristretto"
	"github.com/Strob0t/CareForge/internal/adapter/tiered"
	"github.com/Strob0t/CareForge/internal/adapter/ws"
	"github.com/Strob0t/CareForge/internal/config"
	"github.com/Strob0t/CareForge/internal/dispatch"
	"github.com/Strob0t/CareForge/internal/logger"
	"github.com/Strob0t/CareForge/internal/middleware"
	"github.com/Strob0t/CareForge/internal/port/notifier"
	"github.com/Strob0t/CareForge/internal/resilience"
	"github.com/Strob0t/CareForge/internal/service"

	// Notifier adapters register themselves via init().
	_ "github.com/Strob0t/CareForge/internal/adapter/discord"
	_ "github.com/Strob0t/CareForge/internal/adapter/slack"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	idempotencyBucket = "CAREFORGE_IDEMPOTENCY"
	idempotencyTTL    = 24 * time.Hour
	shutdownTimeout   = 10 * time.Second
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	holder := config.NewHolder(cfg, flags)

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	log.Info("config loaded",
		"version", version,
		"path", cfgPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"auth_enabled", cfg.Auth.Enabled,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)
	if !cfg.Auth.Enabled {
		log.Warn("authentication disabled, every request runs as admin")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	shutdownOtel, err := cfotel.Setup(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOtel(sctx); err != nil {
			log.Error("otel shutdown", "error", err)
		}
	}()
	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	log.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("migrations applied")

	queue, err := cfnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() {
		if err := queue.Drain(); err != nil {
			log.Error("nats drain", "error", err)
		}
	}()
	log.Info("nats connected", "stream", cfg.NATS.Stream)

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()
	l2, err := natskv.Open(ctx, queue.JetStream(), cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
	if err != nil {
		return fmt.Errorf("l2 cache: %w", err)
	}
	cache := tiered.New(l1, l2, cfg.Cache.L1TTL).WithLogger(log)

	objects, err := queue.ObjectStore(ctx, cfg.Documents.Bucket)
	if err != nil {
		return fmt.Errorf("document store: %w", err)
	}
	docBreaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	docIndex, err := queue.KeyValue(ctx, cfg.Documents.Bucket+"_INDEX", 0)
	if err != nil {
		return fmt.Errorf("document index: %w", err)
	}
	documents := natsobj.New(objects, docIndex, docBreaker).
		WithBulkhead(resilience.NewBulkhead(cfg.Documents.MaxConcurrent))

	idempotencyKV, err := queue.KeyValue(ctx, idempotencyBucket, idempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency store: %w", err)
	}

	// --- Services ---

	hub := ws.NewHub(log, originHost(cfg.Server.CORSOrigin))
	defer hub.Close()

	store := postgres.NewStore(pool)
	events := service.NewEvents(queue, hub, log)
	identity, err := service.NewIdentityService(store, cfg.Auth.BcryptCost, events)
	if err != nil {
		return err
	}

	opts := []dispatch.Option{
		dispatch.WithLogger(log),
		dispatch.WithBehaviors(
			dispatch.Logging(log),
			cfotel.DispatchBehavior(metrics),
			dispatch.Authorize(middleware.RoleFromContext),
		),
	}
	if cfg.Dispatch.StopOnFirstFailure {
		opts = append(opts, dispatch.WithStopOnFirstFailure())
	}
	b := dispatch.NewBuilder(opts...)
	service.RegisterAll(b, service.Deps{
		Store:          store,
		Identity:       identity,
		Cache:          cache,
		CacheTTL:       cfg.Cache.L2TTL,
		Documents:      documents,
		MaxDocumentLen: cfg.Documents.MaxSizeBytes,
		Events:         events,
		Metrics:        metrics,
		Logger:         log,
	})
	dispatcher, err := b.Build()
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	log.Info("dispatcher built", "request_types", dispatcher.Len())

	if err := identity.SeedAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword, log); err != nil {
		return err
	}

	var alerts notifier.Notifier
	if cfg.Notify.Provider != "" {
		alerts, err = notifier.New(cfg.Notify.Provider, cfg.Notify.WebhookURL)
		if err != nil {
			return fmt.Errorf("notifier: %w", err)
		}
		log.Info("status alerts enabled", "notifier", alerts.Name())
	}

	stopAudit, err := service.StartPrescriptionAudit(ctx, queue, alerts, log)
	if err != nil {
		return fmt.Errorf("audit subscriber: %w", err)
	}
	defer stopAudit()

	// --- HTTP ---

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()
	failures := middleware.NewRateLimiter(cfg.Rate.AuthFailuresPerMinute/60, cfg.Rate.AuthFailureBurst)
	stopFailureCleanup := failures.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopFailureCleanup()

	holder.OnReload(func(prev, next *config.Config) {
		logger.SetLevel(next.Logging.Level)
		limiter.SetRate(next.Rate.RequestsPerSecond, next.Rate.Burst)
		failures.SetRate(next.Rate.AuthFailuresPerMinute/60, next.Rate.AuthFailureBurst)
		if changed := config.RestartRequired(prev, next); len(changed) > 0 {
			log.Warn("config sections changed that only apply after restart", "sections", changed)
		}
	})

	handlers := &cfhttp.Handlers{
		Dispatcher:    dispatcher,
		DocumentLimit: cfg.Documents.MaxSizeBytes,
		Version:       version,
		Checks: map[string]cfhttp.HealthCheck{
			"postgres": store.Ping,
			"nats": func(context.Context) error {
				if !queue.IsConnected() {
					return errors.New("disconnected")
				}
				return nil
			},
			"documents": func(context.Context) error {
				if docBreaker.State() == "open" {
					return errors.New("circuit open")
				}
				return nil
			},
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(cfhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cfhttp.SecurityHeaders)
	r.Use(cfotel.HTTPMiddleware(cfg.OTEL.ServiceName))
	// Failed logins are charged per IP before credentials are checked.
	r.Use(failures.Failures(http.StatusUnauthorized))
	r.Use(middleware.Auth(identity, cfg.Auth.Enabled))
	r.Use(limiter.Handler)

	// Long-lived, so outside the request timeout.
	r.Get("/ws", hub.HandleWS)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Idempotency(idempotencyKV))
		r.Use(cfhttp.Timeout(func() time.Duration { return holder.Get().Server.RequestTimeout }))
		cfhttp.MountRoutes(r, handlers)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var mcpSrv *cfmcp.Server
	if cfg.MCP.Enabled {
		mcpSrv = cfmcp.NewServer(
			cfmcp.ServerConfig{Addr: cfg.MCP.Addr, Name: "careforge", Version: version},
			cfmcp.ServerDeps{Dispatcher: dispatcher, Authn: identity, AuthEnabled: cfg.Auth.Enabled, Logger: log},
		)
		if err := mcpSrv.Start(); err != nil {
			return err
		}
	}

	// --- Lifecycle ---

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		reload := make(chan os.Signal, 1)
		signal.Notify(reload, syscall.SIGHUP)
		defer signal.Stop(reload)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-reload:
				if err := holder.Reload(); err != nil {
					log.Error("config reload failed, keeping previous config", "error", err)
					continue
				}
				log.Info("config reloaded", "path", holder.Path(), "log_level", holder.Get().Logging.Level)
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if mcpSrv != nil {
			if err := mcpSrv.Stop(sctx); err != nil {
				log.Error("mcp shutdown", "error", err)
			}
		}
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}

// originHost turns the configured CORS origin into the host pattern the
// WebSocket origin check expects.
func originHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return origin
	}
	return u.Host
}
