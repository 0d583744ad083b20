package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/gatehouse/pkg/api"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/config"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/sso"
	"github.com/platinummonkey/gatehouse/pkg/storage"
	"github.com/platinummonkey/gatehouse/pkg/storage/cache"
	"github.com/platinummonkey/gatehouse/pkg/storage/redisstore"
	"github.com/platinummonkey/gatehouse/pkg/storage/sqlstore"
)

var version = "dev"

func main() {
	configFile := flag.String("config", "", "YAML configuration file (overrides GATEHOUSE_CONFIG_FILE)")
	migrateOnly := flag.Bool("migrate", false, "Apply the database schema and exit")
	flag.Parse()

	if *configFile != "" {
		os.Setenv("GATEHOUSE_CONFIG_FILE", *configFile)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.LogLevel(), os.Stdout).
		WithField("service", "gatehouse").
		WithField("version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *migrateOnly); err != nil {
		logger.WithError(err).Error("Gatehouse stopped with an error")
		os.Exit(1)
	}
	logger.Info("Gatehouse stopped")
}

// run builds every component from cfg and serves until ctx is cancelled
func run(ctx context.Context, cfg *config.Config, logger *observability.Logger, migrateOnly bool) error {
	db, dialect, err := sqlstore.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	if err := sqlstore.Migrate(ctx, db); err != nil {
		db.Close()
		return err
	}
	logger.WithField("backend", dialect.Name).Info("Identity database ready")
	if migrateOnly {
		return db.Close()
	}

	var registry *prometheus.Registry
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewDBStatsCollector(db, dialect.Name),
		)
		metrics = observability.NewMetrics(registry)
	}

	tp, err := observability.InitTracing(ctx, cfg.OTelConfig(), logger)
	if err != nil {
		db.Close()
		return err
	}

	var redisClient *redis.Client
	if cfg.Storage.SessionBackend == storage.SessionBackendRedis || (cfg.RateLimit.Enabled && cfg.RateLimit.Backend == "redis") {
		redisClient, err = redisstore.NewClient(ctx, cfg.Storage)
		if err != nil {
			db.Close()
			return err
		}
	}

	identities := sqlstore.NewIdentityStore(db, dialect, cfg.Storage.QueryTimeout, metrics)
	sqlSessions := sqlstore.NewSessionStore(db, dialect, cfg.Storage.QueryTimeout, metrics)
	var sessions auth.SessionStore = sqlSessions
	if cfg.Storage.SessionBackend == storage.SessionBackendRedis {
		sessions = redisstore.NewSessionStore(redisClient, cfg.Storage.QueryTimeout, metrics)
	}
	if cfg.Storage.CacheSize > 0 {
		sessions = cache.NewSessionStore(sessions, cfg.Storage.CacheSize, cfg.Storage.CacheTTL, metrics)
	}

	engine, err := auth.NewEngine(cfg.EngineConfig(), identities, sessions, logger)
	if err != nil {
		return err
	}
	logger.WithField("strategy", string(engine.Strategy.Name())).Info("Authentication engine ready")

	opts := api.Options{
		Logger:      logger,
		Metrics:     metrics,
		CORSOrigins: cfg.Server.CORSOrigins,
	}

	if engine.Strategy.Federated() {
		provider, err := sso.NewProvider(ctx, cfg.Federation.Provider)
		if err != nil {
			return auth.Fatal("failed to configure identity provider", err)
		}
		handlers, err := sso.NewHandlers(engine, []sso.Provider{provider}, sso.HandlersConfig{
			SuccessPath: cfg.Federation.SuccessPath,
			Production:  cfg.IsProduction(),
		}, metrics)
		if err != nil {
			return err
		}
		opts.Federation = handlers
		logger.WithField("provider", provider.Name()).Info("Federated login enabled")
	}

	cleanupCtx, cancelCleanup := context.WithCancel(ctx)
	defer cancelCleanup()
	if cfg.RateLimit.Enabled {
		limits := &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.Requests,
			WindowDuration:    cfg.RateLimit.Window,
			BurstSize:         cfg.RateLimit.Burst,
		}
		if cfg.RateLimit.Backend == "redis" {
			opts.Limiter = middleware.NewDistributedRateLimiter(redisClient, limits, "")
		} else {
			limiter := middleware.NewRateLimiter(limits)
			limiter.StartCleanup(cleanupCtx)
			opts.Limiter = limiter
		}
	}

	server := api.NewServer(engine, opts)
	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(server, "gatehouse"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     log.New(os.Stderr, "", log.LstdFlags),
	}
	opsServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           api.NewOpsHandler(observability.NewHealthChecker(db, redisClient, version), registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	scheduler, err := schedulePurge(cfg, sqlSessions, metrics, logger)
	if err != nil {
		return err
	}

	shutdown := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	shutdown.Register("ops-server", opsServer.Shutdown)
	shutdown.Register("tracing", func(ctx context.Context) error {
		return observability.ShutdownTracing(ctx, tp, logger)
	})
	if scheduler != nil {
		shutdown.Register("purge-scheduler", func(ctx context.Context) error {
			select {
			case <-scheduler.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	shutdown.Register("database", func(context.Context) error { return db.Close() })
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("API server listening on %s", apiServer.Addr)
		return serve(apiServer)
	})
	g.Go(func() error {
		logger.Infof("Health and metrics server listening on %s", opsServer.Addr)
		return serve(opsServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully")
		cancelCleanup()
		return shutdown.Shutdown(context.Background())
	})
	return g.Wait()
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server on %s failed: %w", srv.Addr, err)
	}
	return nil
}

// schedulePurge starts the expired session purge. Redis expires sessions on
// its own, so the job only runs when sessions live in the SQL database.
func schedulePurge(cfg *config.Config, sqlSessions *sqlstore.SessionStore, metrics *observability.Metrics, logger *observability.Logger) (*cron.Cron, error) {
	if cfg.Storage.SessionBackend != storage.SessionBackendSQL || cfg.Auth.PurgeSchedule == "" {
		return nil, nil
	}

	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	_, err := c.AddFunc(cfg.Auth.PurgeSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		purged, err := sqlSessions.PurgeExpired(ctx)
		if err != nil {
			logger.WithError(err).Error("Expired session purge failed")
			return
		}
		metrics.SessionsPurged(purged)
		logger.WithField("purged", purged).Debug("Expired sessions purged")
	})
	if err != nil {
		return nil, auth.Fatal("invalid purge schedule", err)
	}
	c.Start()
	logger.WithField("schedule", cfg.Auth.PurgeSchedule).Info("Session purge scheduled")
	return c, nil
}
