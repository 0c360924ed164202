// Package app assembles the service from config: persistence backend,
// delivery transport, store, scheduler, HTTP router and the optional
// Kafka ingest worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"autodrop/internal/api"
	"autodrop/internal/config"
	"autodrop/internal/ingest"
	"autodrop/internal/kafka"
	"autodrop/internal/metrics"
	"autodrop/internal/postgres"
	"autodrop/internal/retry"
	"autodrop/internal/scheduler"
	"autodrop/internal/snapshot"
	filestore "autodrop/internal/snapshot/file"
	pgstore "autodrop/internal/snapshot/postgres"
	redisstore "autodrop/internal/snapshot/redis"
	"autodrop/internal/store"
	"autodrop/internal/transport"
	kafkasender "autodrop/internal/transport/kafka"
)

const (
	connectTimeout  = 2 * time.Second
	connectAttempts = 5
	shutdownTimeout = 5 * time.Second
)

type App struct {
	cfg       config.Config
	logger    *slog.Logger
	Registry  *prometheus.Registry
	Store     *store.Store
	Scheduler *scheduler.Scheduler
	Router    *gin.Engine
	ingest    *ingest.Worker
	closers   []func() error
}

// New restores persisted state, seeds roles from config and resumes active
// timers. The caller owns the returned App and must Close it.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec, err := metrics.NewPrometheus(a.Registry, "autodrop")
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	persister, err := a.openPersister(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store.New(persister, store.WithLogger(logger), store.WithMetrics(rec))
	a.Store.Restore(snapshot.LoadOrEmpty(ctx, persister, logger))
	for _, id := range cfg.Roles.Producers {
		a.Store.RegisterProducer(ctx, id)
	}
	for _, id := range cfg.Roles.Consumers {
		a.Store.RegisterConsumer(ctx, id)
	}

	sender, err := a.openSender()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Scheduler, err = scheduler.New(a.Store, sender, scheduler.WithLogger(logger), scheduler.WithMetrics(rec))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Scheduler.Resume(ctx)

	if cfg.Ingest.Enabled {
		if err := a.openIngest(); err != nil {
			a.Close()
			return nil, err
		}
	}

	opts := []api.Option{
		api.WithLogger(logger),
		api.WithGatherer(a.Registry),
		api.WithDefaultInterval(cfg.Timer.DefaultIntervalSeconds),
	}
	if cfg.API.RateLimit.RPS > 0 {
		opts = append(opts, api.WithRateLimit(cfg.API.RateLimit.RPS, cfg.API.RateLimit.Burst))
	}
	a.Router = api.NewRouter(a.Store, a.Scheduler, opts...)
	return a, nil
}

// OpenPersister returns the configured snapshot backend and a close func.
func OpenPersister(ctx context.Context, cfg config.Config, logger *slog.Logger) (snapshot.Persister, func() error, error) {
	noop := func() error { return nil }
	switch cfg.State.Backend {
	case config.BackendFile:
		return filestore.New(cfg.State.Path), noop, nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		err := retry.Do(ctx, cfg.Retry, connectAttempts, func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
			defer cancel()
			return client.Ping(pingCtx).Err()
		})
		if err != nil {
			logger.Warn("redis not reachable, continuing", "addr", cfg.Redis.Addr, "err", err)
		}
		st := redisstore.NewWithClient(client, cfg.Redis.Prefix)
		return st, st.Close, nil
	case config.BackendPostgres:
		if err := postgres.WaitReady(ctx, cfg.Postgres, cfg.Retry, connectAttempts); err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		st, pool, err := pgstore.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		return st, func() error { pool.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown state backend %q", cfg.State.Backend)
	}
}

func (a *App) openPersister(ctx context.Context) (snapshot.Persister, error) {
	p, closeFn, err := OpenPersister(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeFn)
	return p, nil
}

func (a *App) openSender() (transport.Sender, error) {
	switch a.cfg.Transport.Kind {
	case config.TransportLog:
		return transport.NewLogSender(a.logger), nil
	case config.TransportKafka:
		a.checkKafka()
		producer, err := kafka.NewWriter(a.cfg.Kafka)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		a.closers = append(a.closers, producer.Close)
		return kafkasender.New(a.cfg.Kafka, producer)
	default:
		return nil, fmt.Errorf("unknown transport %q", a.cfg.Transport.Kind)
	}
}

func (a *App) openIngest() error {
	a.checkKafka()
	consumer, err := kafka.NewReader(a.cfg.Kafka)
	if err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}
	a.closers = append(a.closers, consumer.Close)
	w, err := ingest.New(consumer, a.Store, a.logger, a.cfg.Retry)
	if err != nil {
		return err
	}
	a.ingest = w
	return nil
}

func (a *App) checkKafka() {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := kafka.Probe(ctx, a.cfg.Kafka); err != nil {
		a.logger.Warn("kafka connectivity check failed", "err", err)
	}
}

// Run serves HTTP, and ingest when enabled, until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              a.cfg.API.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		a.logger.Info("api listening", "addr", a.cfg.API.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server: %w", err)
		}
	}()

	ingestCtx, stopIngest := context.WithCancel(ctx)
	defer stopIngest()
	if a.ingest != nil {
		go func() {
			if err := a.ingest.Run(ingestCtx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("ingest: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown", "err", err)
	}
	return runErr
}

// Close stops every timer loop and releases backend connections. Persisted
// timer configuration is kept for the next start.
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
