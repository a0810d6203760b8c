package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"risk-gateway/internal/config"
	auditapp "risk-gateway/middleware/audit/application"
	auditdomain "risk-gateway/middleware/audit/domain"
	auditinfra "risk-gateway/middleware/audit/infra"
	"risk-gateway/middleware/clientid"
	"risk-gateway/middleware/gatekeeper"
	rldomain "risk-gateway/middleware/ratelimit/domain"
	rlinfra "risk-gateway/middleware/ratelimit/infra"
	secdomain "risk-gateway/middleware/security/domain"
	secinfra "risk-gateway/middleware/security/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// gateway agrupa o pipeline e os recursos que precisam ser fechados.
type gateway struct {
	pipeline *gatekeeper.Pipeline
	memory   *rlinfra.MemoryWindowStore
	stats    *rlinfra.MemoryStatsStore
	registry *prometheus.Registry

	closers []func(context.Context) error
}

func (g *gateway) Close(ctx context.Context) error {
	var errs []error
	// ordem inversa da criação
	for i := len(g.closers) - 1; i >= 0; i-- {
		if err := g.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	g := &gateway{registry: prometheus.NewRegistry()}
	g.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	fail := func(err error) (*gateway, error) {
		_ = g.Close(context.Background())
		return nil, err
	}

	// rate limit
	g.memory = rlinfra.NewMemoryWindowStore(
		rlinfra.WithIdleTTL(cfg.RateIdleTTL),
		rlinfra.WithCleanupEvery(cfg.RateCleanupEvery),
		rlinfra.WithMaxKeys(cfg.RateMaxKeys),
	)
	g.memory.StartJanitor(ctx)

	var rdb *redis.Client
	if cfg.RedisAddr != "" && (cfg.RateBackend == "redis" || cfg.RateStatsEnabled) {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		g.closers = append(g.closers, func(context.Context) error { return rdb.Close() })

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			return fail(fmt.Errorf("redis ping error: %w", err))
		}
	}

	var store rldomain.WindowStore = g.memory
	if cfg.RateBackend == "redis" {
		store = rlinfra.NewRedisWindowStore(rdb,
			rlinfra.WithWindowPrefix(cfg.RateRedisPrefix),
			rlinfra.WithFallback(g.memory),
			rlinfra.WithWindowLogger(logger),
		)
	}

	g.stats = rlinfra.NewMemoryStatsStore()
	prom, err := rlinfra.NewPrometheusStatsStore(g.registry)
	if err != nil {
		return fail(err)
	}
	stats := rlinfra.TeeStats{g.stats, prom}
	if cfg.RateStatsEnabled {
		stats = append(stats, rlinfra.NewRedisStatsStore(rdb,
			rlinfra.WithStatsPrefix(cfg.RateStatsPrefix),
			rlinfra.WithStatsTTL(cfg.RateStatsTTL),
			rlinfra.WithStatsBucket(cfg.RateStatsBucket),
			rlinfra.WithStatsTrackKeys(cfg.RateStatsTrackKeys),
		))
	}

	// block list
	var blockList secdomain.BlockList
	if cfg.BlockListFile != "" {
		fb, err := secinfra.NewFileBlockList(cfg.BlockListFile, logger)
		if err != nil {
			return fail(err)
		}
		go func() {
			if err := fb.Watch(ctx); err != nil {
				logger.Error("blocklist watch stopped", "error", err)
			}
		}()
		blockList = fb
	} else {
		blockList = secinfra.NewMemoryBlockList()
	}

	// audit
	recorder, err := buildRecorder(ctx, g, cfg, logger)
	if err != nil {
		return fail(err)
	}

	g.pipeline, err = gatekeeper.New(gatekeeper.Options{
		Resolver:         clientid.Resolver{IgnoreForwarded: !cfg.TrustForwarded},
		BlockList:        blockList,
		MaxBodyBytes:     cfg.MaxBodyBytes,
		BlockSuspicious:  cfg.BlockSuspicious,
		DisableRateLimit: !cfg.RateEnabled,
		Store:            store,
		Stats:            stats,
		Policy:           cfg.Policy,
		Recorder:         recorder,
		Logger:           logger,
	})
	if err != nil {
		return fail(err)
	}
	return g, nil
}

func buildRecorder(ctx context.Context, g *gateway, cfg config.Config, logger *slog.Logger) (rc *auditapp.Recorder, err error) {
	sinks := auditinfra.MultiSink{auditinfra.NewSlogSink(logger)}
	defer func() {
		if err != nil {
			_ = sinks.Close()
		}
	}()

	if cfg.AuditFile != "" {
		fileSink, err := auditinfra.OpenFileSink(cfg.AuditFile, auditinfra.WithFileLogger(logger))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fileSink)
	}
	if cfg.AuditDatabaseURL != "" {
		pg, pool, err := auditinfra.OpenPostgres(ctx, cfg.AuditDatabaseURL)
		if err != nil {
			return nil, err
		}
		g.closers = append(g.closers, func(context.Context) error { pool.Close(); return nil })
		sinks = append(sinks, pg)
	}
	if len(cfg.AuditKafka) > 0 {
		ks, err := auditinfra.NewKafkaSink(auditinfra.KafkaConfig{Brokers: cfg.AuditKafka, Topic: cfg.AuditKafkaTopic})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, ks)
	}

	metrics, err := auditapp.NewMetrics(g.registry)
	if err != nil {
		return nil, err
	}

	// falhas no worker assíncrono já não passam pelo recorder
	failLog := &rate.Sometimes{First: 1, Interval: 10 * time.Second}
	async := auditinfra.NewAsyncSink(sinks, cfg.AuditBuffer, func(rec auditdomain.Record, err error) {
		metrics.Failures.Inc()
		failLog.Do(func() {
			logger.Error("audit sink write failed", "error", err, "audit_id", rec.ID)
		})
	})
	g.closers = append(g.closers, async.Close)

	paths := auditdomain.DefaultPathSet()
	if len(cfg.SensitivePaths) > 0 {
		paths = auditdomain.NewPathSet(cfg.SensitivePaths...)
	}
	rc = auditapp.NewRecorder(async, paths, logger, metrics)
	rc.IncludeHeaders = cfg.AuditHeaders
	return rc, nil
}
