package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/okian/lingotrack/internal/adapters/http/api"
	"github.com/okian/lingotrack/internal/adapters/repository"
	service "github.com/okian/lingotrack/internal/app"
	"github.com/okian/lingotrack/internal/config"
	"github.com/okian/lingotrack/pkg/logger"
	"github.com/okian/lingotrack/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
	redisPingTimeout       = 2 * time.Second
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// defaults -> optional file -> .env -> env
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Error(ctx, "failed to load config", logger.Error(err))
		return 1
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "server exited with error", logger.Error(err))
		return 1
	}
	return 0
}

// run serves until ctx is cancelled, then drains the event pipeline.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	registerRuntimeCollectors(log)

	sqlLevel, err := repository.ParseSQLLogLevel(cfg.DBLogLevel)
	if err != nil {
		return err
	}
	db, err := repository.Open(ctx, cfg.DBDriver, cfg.DBDSN,
		repository.WithMaxOpenConns(cfg.DBMaxOpenConns),
		repository.WithConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetimeSeconds)*time.Second),
		repository.WithSQLLogLevel(sqlLevel),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := repository.Close(db); err != nil {
			log.Warn(context.Background(), "closing database", logger.Error(err))
		}
	}()

	opts := []service.Option{
		service.WithLogger(log),
		service.WithAutoMigrate(cfg.DBAutoMigrate),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.EventQueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
	}
	if cfg.RedisAddr != "" {
		rdb := newRedis(ctx, cfg, log)
		defer func() { _ = rdb.Close() }()
		opts = append(opts, service.WithCatalogCache(rdb, time.Duration(cfg.CatalogCacheTTLSeconds)*time.Second))
	}

	svc := service.New(db, opts...)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = svc.Stop(stopCtx)
	}()

	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(svc, log.Named("api")),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// newRouter mounts the API over a started service.
func newRouter(svc *service.Service, log logger.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(api.Dependencies{
		Progress: svc.Coordinator(),
		Reports:  svc.Reporter(),
		Catalog:  svc.Catalog(),
		Ingest:   svc,
		Stats:    svc,
		Health:   svc,
	}, log).Register(mux)
	return mux
}

// newRedis connects the catalog cache. An unreachable Redis is logged, not
// fatal; the cache falls through to the database until it comes back.
func newRedis(ctx context.Context, cfg *config.Config, log logger.Logger) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn(ctx, "redis unreachable; catalog cache will fall through", logger.String("addr", cfg.RedisAddr), logger.Error(err))
	}
	return rdb
}

// registerRuntimeCollectors adds Go runtime and process metrics to the
// custom registry once.
func registerRuntimeCollectors(log logger.Logger) {
	reg := metrics.GetRegistry()
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				log.Warn(context.Background(), "registering collector", logger.Error(err))
			}
		}
	}
}

// startServiceMetricsUpdater refreshes queue gauges from the service stats.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = svc.GetStats()
		}
	}
}
