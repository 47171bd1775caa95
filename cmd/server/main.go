package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"patientregistry/internal/patient/handler"
	patientmetrics "patientregistry/internal/patient/metrics"
	"patientregistry/internal/patient/service"
	"patientregistry/internal/patient/store"
	"patientregistry/internal/platform/config"
	"patientregistry/internal/platform/httpserver"
	"patientregistry/internal/platform/logger"
	"patientregistry/internal/platform/metrics"
	platformmongo "patientregistry/internal/platform/mongo"
	"patientregistry/internal/platform/postgres"
	platformredis "patientregistry/internal/platform/redis"
	httptransport "patientregistry/internal/transport/http"
	"patientregistry/pkg/platform/audit"
	"patientregistry/pkg/platform/audit/publisher"
	auditkafka "patientregistry/pkg/platform/audit/store/kafka"
	auditmemory "patientregistry/pkg/platform/audit/store/memory"
)

const auditBufferSize = 1024

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	healthChecks := map[string]httptransport.HealthChecker{}
	patientMetrics := patientmetrics.New(prometheus.DefaultRegisterer)

	backend, err := buildStore(ctx, cfg, log, healthChecks, &closers)
	if err != nil {
		return err
	}

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		closers = append(closers, func() { _ = redisClient.Close() })
		healthChecks["redis"] = redisClient
		backend = store.NewCached(backend, redisClient.Client, cfg.Redis.CacheTTL,
			store.WithCacheLogger(log),
			store.WithCacheMetrics(patientMetrics),
		)
		log.Info("patient cache enabled", "ttl", cfg.Redis.CacheTTL)
	}

	auditStore, err := buildAuditStore(cfg, log, &closers)
	if err != nil {
		return err
	}
	auditPublisher := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(auditBufferSize),
		publisher.WithLogger(log),
	)
	// runs before the sink closers so queued events still reach the sink
	closers = append(closers, auditPublisher.Close)

	registry := service.New(backend,
		service.WithLogger(log),
		service.WithMetrics(patientMetrics),
		service.WithAuditPublisher(auditPublisher),
	)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		Metrics:        metrics.New(prometheus.DefaultRegisterer),
		RequestTimeout: cfg.RequestTimeout,
		HealthChecks:   healthChecks,
		Modules:        []httptransport.RouteRegistrar{handler.New(registry, log)},
	})
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting patient registry", "addr", cfg.Addr, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", "timeout", cfg.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func buildStore(ctx context.Context, cfg config.Server, log *slog.Logger, checks map[string]httptransport.HealthChecker, closers *[]func()) (store.Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendMongo:
		client, err := platformmongo.New(ctx, cfg.Mongo)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		*closers = append(*closers, func() { _ = client.Close(context.Background()) })
		s := store.NewMongo(client.DB)
		if err := s.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		checks["mongo"] = s
		log.Info("using mongo patient store", "database", cfg.Mongo.Database)
		return s, nil

	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		*closers = append(*closers, func() { _ = db.Close() })
		s := store.NewPostgres(db)
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		checks["postgres"] = s
		log.Info("using postgres patient store")
		return s, nil

	default:
		log.Warn("using in-memory patient store; data is lost on restart")
		s := store.NewInMemory()
		checks["memory"] = s
		return s, nil
	}
}

func buildAuditStore(cfg config.Server, log *slog.Logger, closers *[]func()) (audit.Store, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return auditmemory.NewInMemoryStore(), nil
	}
	client, err := auditkafka.NewClient(cfg.Kafka.Brokers)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	*closers = append(*closers, client.Close)
	log.Info("publishing audit events to kafka", "topic", cfg.Kafka.AuditTopic, "brokers", cfg.Kafka.Brokers)
	return auditkafka.New(client, cfg.Kafka.AuditTopic), nil
}
