package main

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"veto/internal/audit"
	"veto/internal/crypto"
	"veto/internal/enforcement"
	"veto/internal/pointer/cache"
	"veto/internal/pointer/handler"
	"veto/internal/pointer/registry"
	"veto/internal/platform/config"
	"veto/internal/platform/httpserver"
	"veto/internal/platform/logger"
	"veto/internal/platform/metrics"
	vetoredis "veto/internal/platform/redis"
	"veto/internal/receipt"
	"veto/internal/receipt/stream"
	"veto/internal/storage"
	"veto/internal/storage/memory"
	"veto/internal/storage/postgres"
)

const (
	// Receipts queued for the stream before Publish starts dropping.
	streamBuffer = 1024
	// -1 lets the brokers apply their defaults.
	receiptTopicPartitions  = -1
	receiptTopicReplication = -1
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "veto: %v\n", err)
		os.Exit(1)
	}
}

type shutdownFunc func(ctx context.Context) error

func run() error {
	cfg, err := config.Load(os.Getenv("VETO_CONFIG_PATH"))
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var shutdowns []shutdownFunc
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		// Release in reverse acquisition order.
		for i := len(shutdowns) - 1; i >= 0; i-- {
			if err := shutdowns[i](shutdownCtx); err != nil {
				log.Error("shutdown step failed", "error", err)
			}
		}
	}()

	signer, generated, err := crypto.LoadOrGenerateEd25519Signer(cfg.Signing.PrivateKey)
	if err != nil {
		return fmt.Errorf("load signing key: %w", err)
	}
	if generated {
		log.Warn("no signing key configured, generated an ephemeral key",
			"key_id", signer.KeyID(),
			"public_key", base64.StdEncoding.EncodeToString(signer.PublicKey()),
		)
	}

	m := metrics.New()

	db, checks, closeDB, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	shutdowns = append(shutdowns, closeDB)

	tombstones, redisCheck, closeCache, err := openTombstones(ctx, cfg, log)
	if err != nil {
		return err
	}
	if closeCache != nil {
		shutdowns = append(shutdowns, closeCache)
		checks["redis"] = redisCheck
	}

	publisher, closeStream, err := openStream(ctx, cfg, log, m)
	if err != nil {
		return err
	}
	if closeStream != nil {
		shutdowns = append(shutdowns, closeStream)
	}

	chain := receipt.New(signer, crypto.RegistryFor(signer),
		receipt.WithLogger(log),
		receipt.WithMetrics(m),
	)
	recorder := audit.NewRecorder(audit.WithLogger(log))

	reg := registry.New(db, chain, recorder,
		registry.WithLogger(log),
		registry.WithMetrics(m),
		registry.WithDefaultOrg(cfg.Tenant.DefaultOrgID),
		registry.WithTombstones(tombstones),
		registry.WithPublisher(publisher),
	)
	if _, err := reg.EnsureOrganization(ctx, cfg.Tenant.DefaultOrgID, cfg.Tenant.DefaultOrgName); err != nil {
		return fmt.Errorf("seed default organization: %w", err)
	}

	guard := enforcement.New(db, chain, recorder,
		enforcement.WithLogger(log),
		enforcement.WithMetrics(m),
		enforcement.WithTombstones(tombstones),
		enforcement.WithResolveReceipts(cfg.ResolveReceipts),
	)
	query := audit.NewQuery(db, chain, audit.WithQueryLogger(log))

	h := handler.New(reg, guard, query, cfg.Tenant.DefaultOrgID, log)
	router := newRouter(routerConfig{
		server:         cfg.Server,
		logger:         log,
		metrics:        m,
		metricsHandler: promhttp.Handler(),
		health:         checks,
	}, h)

	srv := httpserver.New(cfg.Server.Addr, router)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting veto", "addr", cfg.Server.Addr, "resolve_receipts", cfg.ResolveReceipts)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info("server exited")
	return nil
}

// openDatabase selects Postgres when a URL is configured and the in-memory
// backend otherwise.
func openDatabase(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Database, map[string]healthCheck, shutdownFunc, error) {
	checks := map[string]healthCheck{}
	if cfg.Database.URL == "" {
		log.Warn("no database_url configured, using the in-memory backend")
		return memory.New(memory.WithTxTimeout(cfg.Database.TxTimeout)), checks, noopShutdown, nil
	}

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(cfg.Database.URL); err != nil {
			return nil, nil, nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	sqlDB, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, nil, err
	}
	checks["postgres"] = sqlDB.PingContext
	return postgres.New(sqlDB, postgres.WithTxTimeout(cfg.Database.TxTimeout)), checks, closeSQL(sqlDB), nil
}

func closeSQL(db *sql.DB) shutdownFunc {
	return func(context.Context) error { return db.Close() }
}

func noopShutdown(context.Context) error { return nil }

// openTombstones prefers Redis so tombstones are shared across instances.
func openTombstones(ctx context.Context, cfg *config.Config, log *slog.Logger) (cache.Tombstones, healthCheck, shutdownFunc, error) {
	client, err := vetoredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, nil, err
	}
	if client == nil {
		return cache.NewMemory(cache.WithMemoryTTL(cfg.Redis.TombstoneTTL)), nil, nil, nil
	}
	log.Info("orphan tombstones stored in redis", "ttl", cfg.Redis.TombstoneTTL.String())
	tombstones := cache.NewRedis(client.Client, cache.WithTTL(cfg.Redis.TombstoneTTL))
	return tombstones, client.Health, func(context.Context) error { return client.Close() }, nil
}

// openStream starts the receipt stream worker when Kafka brokers are
// configured.
func openStream(ctx context.Context, cfg *config.Config, log *slog.Logger, m *metrics.Metrics) (stream.Publisher, shutdownFunc, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return stream.Nop{}, nil, nil
	}
	kafka, err := stream.NewKafkaPublisher(cfg.Kafka)
	if err != nil {
		return nil, nil, err
	}
	topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := kafka.EnsureTopic(topicCtx, receiptTopicPartitions, receiptTopicReplication); err != nil {
		// The topic may be managed externally with restricted ACLs.
		log.Warn("could not ensure receipt topic", "topic", cfg.Kafka.Topic, "error", err)
	}

	worker := stream.NewWorker(kafka, streamBuffer,
		stream.WithLogger(log),
		stream.WithFailureCounter(m),
	)
	go worker.Run(context.WithoutCancel(ctx))
	log.Info("publishing receipts to kafka", "topic", cfg.Kafka.Topic)

	return worker, func(ctx context.Context) error {
		return errors.Join(worker.Close(ctx), kafka.Close(ctx))
	}, nil
}
