// Command assistantd runs the site search assistant service: the dataset
// lifecycle scheduler, the public session/dataset endpoints, and the operator
// admin API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sitekit/search-assistant/internal/auth/sessiontoken"
	"github.com/sitekit/search-assistant/internal/content"
	"github.com/sitekit/search-assistant/internal/dataset/lifecycle"
	"github.com/sitekit/search-assistant/internal/dataset/signature"
	"github.com/sitekit/search-assistant/internal/events"
	"github.com/sitekit/search-assistant/internal/ratelimit"
	"github.com/sitekit/search-assistant/internal/server"
	"github.com/sitekit/search-assistant/pkg/config"
	"github.com/sitekit/search-assistant/pkg/health"
	"github.com/sitekit/search-assistant/pkg/kafka"
	"github.com/sitekit/search-assistant/pkg/kvstore"
	"github.com/sitekit/search-assistant/pkg/logger"
	"github.com/sitekit/search-assistant/pkg/metrics"
	"github.com/sitekit/search-assistant/pkg/postgres"
	"github.com/sitekit/search-assistant/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log := slog.Default().With("component", "assistantd")

	if err := run(cfg, log); err != nil {
		log.Error("service exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()

	rdb, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer rdb.Close()

	repo := content.NewPostgresRepository(db)
	store := kvstore.NewPostgresStore(db)
	signer := signature.NewService(repo)
	m := metrics.New()

	var publisher lifecycle.Publisher
	if cfg.Kafka.Enabled() {
		ep := events.NewPublisher(kafka.NewProducer(cfg.Kafka, cfg.Kafka.LifecycleTopic))
		defer ep.Close()
		publisher = ep
		log.Info("lifecycle event publishing enabled", "topic", cfg.Kafka.LifecycleTopic)
	}

	manager := lifecycle.New(cfg.Dataset, lifecycle.Deps{
		Store:     store,
		Extractor: repo,
		Signer:    signer,
		Publisher: publisher,
		Metrics:   m,
	})

	limiter := ratelimit.New(rdb, cfg.RateLimit)
	sessions := sessiontoken.New(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL)

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := db.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if err := rdb.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("snapshot", func(ctx context.Context) health.ComponentHealth {
		path, err := manager.CurrentPath(ctx)
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		if path == "" {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "dataset not built yet"}
		}
		if _, err := os.Stat(path); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "snapshot file missing"}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	handler := server.New(manager, limiter, sessions, cfg.Server.PublicHost, cfg.Search, m)
	router := server.NewRouter(handler, checker, m, server.RouterConfig{
		AdminToken:     cfg.Auth.AdminToken,
		RequestTimeout: cfg.Server.ReadTimeout,
		AllowedOrigins: allowedOrigins(cfg.Server.PublicHost),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return shutdownMetrics(shutdownCtx)
		})
	}

	g.Go(func() error {
		return runScheduler(gctx, cfg.Dataset, manager, log)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("service stopped")
	return nil
}

// runScheduler drives the lifecycle: one transition immediately on startup,
// then one per tick interval. A failed transition is logged and retried on
// the next tick; it never stops the loop.
func runScheduler(ctx context.Context, cfg config.DatasetConfig, manager *lifecycle.Manager, log *slog.Logger) error {
	tick := func() {
		tctx, cancel := context.WithTimeout(ctx, cfg.ExtractTimeout)
		defer cancel()
		if _, err := manager.Tick(tctx); err != nil {
			log.Error("lifecycle tick failed", "error", err)
		}
	}

	tick()

	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tick()
		}
	}
}

// allowedOrigins derives the browser origins permitted by CORS from the
// public host.
func allowedOrigins(host string) []string {
	return []string{"https://" + host, "http://" + host}
}
