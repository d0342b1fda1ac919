// Copyright 2025 James Ross
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flyingrobots/event-analytics-engine/internal/aggregation"
	"github.com/flyingrobots/event-analytics-engine/internal/analytics"
	"github.com/flyingrobots/event-analytics-engine/internal/breaker"
	"github.com/flyingrobots/event-analytics-engine/internal/cache"
	"github.com/flyingrobots/event-analytics-engine/internal/config"
	"github.com/flyingrobots/event-analytics-engine/internal/eventbus"
	"github.com/flyingrobots/event-analytics-engine/internal/eventproc"
	"github.com/flyingrobots/event-analytics-engine/internal/eventsdb"
	"github.com/flyingrobots/event-analytics-engine/internal/obs"
	"github.com/flyingrobots/event-analytics-engine/internal/redisclient"
	"github.com/flyingrobots/event-analytics-engine/internal/scheduler"
	"github.com/flyingrobots/event-analytics-engine/internal/usermetrics"
	"github.com/flyingrobots/event-analytics-engine/internal/views"
	_ "github.com/lib/pq"
)

var version = "dev"

func main() {
	var configPath string
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = fs.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	tp, err := obs.MaybeInitTracing(cfg)
	if err != nil {
		logger.Warn("tracing init failed", obs.Err(err))
	}
	if tp != nil {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	rdb := redisclient.New(cfg)
	defer rdb.Close()

	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal("failed to open postgres pool", obs.Err(err))
	}
	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	readyCheck := func(c context.Context) error {
		if _, err := rdb.Ping(c).Result(); err != nil {
			return err
		}
		return db.PingContext(c)
	}
	httpSrv := obs.StartHTTPServer(cfg, readyCheck)
	defer func() { _ = httpSrv.Shutdown(context.Background()) }()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, shutting down", obs.String("signal", sig.String()))
		cancel()
		select {
		case sig2 := <-sigCh:
			logger.Warn("second signal received, exiting immediately", obs.String("signal", sig2.String()))
			os.Exit(1)
		case <-time.After(5 * time.Second):
		}
	}()

	cb := breaker.New(cfg.CircuitBreaker.Window, cfg.CircuitBreaker.CooldownPeriod,
		cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.MinSamples)

	tieredCache, err := cache.NewTieredCacheBuilder(cfg.Cache, rdb, cb).Build()
	if err != nil {
		logger.Fatal("failed to build tiered cache", obs.Err(err))
	}
	defer tieredCache.Close()

	store := eventsdb.NewStore(db)
	agg := aggregation.NewEngine(rdb)
	viewsManager := views.NewManager(db)
	analyticsService := analytics.NewService(agg, viewsManager)
	_ = analyticsService // exposed to a future HTTP/OpenAPI layer, out of scope here

	var procOpts []eventproc.Option
	if cfg.EventProc.IdempotencyEnabled {
		procOpts = append(procOpts, eventproc.WithIdempotency(eventproc.NewIdempotencyGuard(rdb, cfg.EventProc.IdempotencyTTL)))
	}
	if cfg.EventProc.OutboxEnabled {
		procOpts = append(procOpts, eventproc.WithOutbox())
	}
	if cfg.EventProc.QueueCapacity > 0 {
		procOpts = append(procOpts, eventproc.WithQueueCapacity(cfg.EventProc.QueueCapacity))
	}
	processor := eventproc.NewProcessor(store, agg, logger, procOpts...)

	bus := eventbus.New[eventbus.SystemEvent](logger)
	bus.StartProcessing(cfg.EventBus.BatchSize, cfg.EventBus.FlushInterval)
	scheduler.WireCacheInvalidation(bus, tieredCache, logger)

	metricsUpdater := usermetrics.New(rdb)
	var fileSweeper scheduler.Sweepable
	if fl := tieredCache.FileLayer(); fl != nil {
		fileSweeper = fl
	}
	sched := scheduler.New(*cfg, viewsManager, store, agg, fileSweeper, metricsUpdater, logger)
	if err := sched.Start(ctx); err != nil {
		logger.Fatal("failed to start scheduler", obs.Err(err))
	}
	defer sched.Stop()

	go processor.Run(ctx)
	defer processor.Close()

	logger.Info("ingestion server started", obs.Int("metrics_port", cfg.Observability.MetricsPort))
	<-ctx.Done()
	logger.Info("ingestion server stopped")
}
