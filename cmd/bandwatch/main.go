package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"bandwatch/internal/alerts"
	"bandwatch/internal/api"
	"bandwatch/internal/config"
	"bandwatch/internal/dispatch"
	"bandwatch/internal/engine"
	"bandwatch/internal/ingest"
	"bandwatch/internal/logging"
	"bandwatch/internal/metrics"
	"bandwatch/internal/model"
	"bandwatch/internal/notify"
	"bandwatch/internal/storage"
	"bandwatch/internal/version"
)

func main() {
	configPath := flag.String("config", "bandwatch.yaml", "path to config file (yaml, json or toml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if err := run(config.ResolvePath(*configPath)); err != nil {
		fmt.Fprintln(os.Stderr, "bandwatch:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	mgr, err := config.NewManager(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := mgr.Get()

	level := new(slog.LevelVar)
	level.Set(logging.ParseLevel(cfg.LogLevel))
	logger := logging.NewLeveled(os.Stdout, level, cfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("bandwatch starting", "version", version.String(), "config", configPath)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("init %s store: %w", cfg.Storage.Driver, err)
	}
	seeded, err := storage.SeedRules(ctx, store, cfg.Rules)
	if err != nil {
		return fmt.Errorf("seed rules: %w", err)
	}
	logger.Info("storage ready", "driver", cfg.Storage.Driver, "rules_seeded", seeded)

	m := metrics.New()
	registry := notify.NewRegistry(cfg.Notifications, logger)
	recent := alerts.NewStore(cfg.Deliveries.StoreLimit)

	opts := append(dispatch.FromConfig(cfg.Dispatch),
		dispatch.WithLogger(logger.With("component", "dispatch")),
		dispatch.WithMetrics(m),
		dispatch.WithRecent(recent),
	)
	dispatcher := dispatch.New(store, registry, opts...)
	dispatcher.Start()
	defer dispatcher.Stop()

	evaluator := engine.NewEvaluator(store, dispatcher, logger.With("component", "evaluator"), m, cfg.Evaluator.SuppressionWindow)

	if cfg.Collector.Enabled {
		source := strings.ToLower(cfg.Collector.Source)
		handle := func(ctx context.Context, snap model.Snapshot) {
			m.SnapshotEvaluated(source)
			evaluator.Cycle(ctx, snap)
		}
		collectorLogger := logger.With("component", "collector")
		tracker := ingest.NewTracker()
		switch source {
		case "kafka":
			ingest.StartKafka(ctx, cfg.Collector.Kafka, tracker, handle, collectorLogger)
		default:
			go ingest.NewPoller(cfg.Collector, tracker, handle, collectorLogger).Run(ctx)
		}
	} else {
		logger.Info("collector disabled")
	}

	if cfg.API.Enabled {
		api.New(api.Options{
			Dispatcher: dispatcher,
			Channels:   registry,
			Recent:     recent,
			Metrics:    m,
			Logger:     logger.With("component", "api"),
			ConfigPath: configPath,
		}).Start(ctx, cfg.API.Addr)
	} else {
		logger.Info("api disabled")
	}

	go func() {
		err := mgr.Watch(ctx, func(next *config.Config) {
			level.Set(logging.ParseLevel(next.LogLevel))
			registry.Reload(next.Notifications)
			n, err := storage.SeedRules(ctx, store, next.Rules)
			if err != nil {
				logger.Error("reseed rules failed", "err", err)
			}
			logger.Info("config reloaded", "rules_seeded", n, "channels_enabled", registry.Enabled())
		}, func(err error) {
			logger.Warn("config reload failed, keeping previous config", "err", err)
		})
		if err != nil {
			logger.Warn("config watch unavailable", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("bandwatch shutting down")
	return nil
}
