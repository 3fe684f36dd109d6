package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fuelwatch/internal/alerts"
	"fuelwatch/internal/api"
	"fuelwatch/internal/audit"
	"fuelwatch/internal/config"
	"fuelwatch/internal/feed"
	"fuelwatch/internal/ingest"
	"fuelwatch/internal/logging"
	"fuelwatch/internal/metrics"
	"fuelwatch/internal/registry"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fuelwatchd:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "fuelwatch.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return nil
	}

	_ = godotenv.Load()
	if v := os.Getenv("FUELWATCH_CONFIG"); v != "" && *configPath == "fuelwatch.yaml" {
		*configPath = v
	}

	path := config.ResolvePath(*configPath)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path, config.DefaultConfig()); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	manager, err := config.NewManager(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := manager.Get()

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting", "version", version, "config", path)

	metrics.Init()

	store, err := registry.NewStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer store.Close()

	broker := feed.NewBroker(cfg.Feed.Buffer)
	defer broker.Close()
	if cfg.Feed.Kafka.Enabled {
		publisher := feed.NewKafkaPublisher(cfg.Feed.Kafka, logger)
		defer publisher.Close()
		mirrorFeed(ctx, broker, publisher)
		logger.Info("feed kafka mirror enabled", "brokers", cfg.Feed.Kafka.Brokers, "topic", cfg.Feed.Kafka.Topic)
	}

	auditLog := audit.NewSlog(logger)
	recent := alerts.NewStore(cfg.Alerts.StoreLimit)
	emitter := alerts.NewEmitter(store, recent, broker, auditLog, logger)
	dispatcher := ingest.NewDispatcher(store, emitter, broker, auditLog, logger, cfg.Rules)

	ingest.StartREST(ctx, manager, dispatcher, logger)
	ingest.StartKafka(ctx, manager, dispatcher, logger)
	api.Start(ctx, manager, store, recent, broker, auditLog, logger, version)

	stopWatch := make(chan struct{})
	go manager.Watch(3*time.Second,
		func(next *config.Config) {
			logger.Info("config reloaded", "path", path)
		},
		func(err error) {
			logger.Warn("config reload error", "err", err)
		},
		stopWatch,
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	s := <-sig
	logger.Info("shutting down", "signal", s.String())
	close(stopWatch)
	cancel()

	// The ingest and api servers shut down off the cancelled context; give
	// their drains a moment before the deferred closes run.
	time.Sleep(200 * time.Millisecond)
	return nil
}

// mirrorFeed forwards broker events for both entities onto the kafka topic.
func mirrorFeed(ctx context.Context, broker *feed.Broker, publisher *feed.KafkaPublisher) {
	for _, entity := range []feed.Entity{feed.EntityAlerts, feed.EntityStations} {
		src := broker.Subscribe(entity)
		go func() {
			defer src.Close()
			for {
				select {
				case ev, ok := <-src.Events():
					if !ok {
						return
					}
					publisher.Publish(ctx, ev)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
}
