package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"estate_sync/internal/api"
	"estate_sync/internal/config"
	"estate_sync/internal/location"
	"estate_sync/internal/logging"
	"estate_sync/internal/publisher"
	"estate_sync/internal/scheduler"
	"estate_sync/internal/service"
	"estate_sync/internal/source/asari"
	"estate_sync/internal/storage/postgres"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	runOnce := flag.Bool("once", false, "run one full sync and exit")
	flag.Parse()

	if err := run(*configPath, *runOnce); err != nil {
		slog.Error("syncer failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, runOnce bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(cfg.Log, os.Stdout)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return err
	}
	defer db.Close()
	logger.Info("connected to database")

	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			return err
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	}

	// Stores
	listingStore := postgres.NewListingStore(db)
	imageStore := postgres.NewImageStore(db)
	agentStore := postgres.NewAgentStore(db)
	syncStateStore := postgres.NewSyncStateStore(db)
	txManager := postgres.NewTransactionManager(db)

	source := asari.New(asari.Config{
		BaseURL:        cfg.Asari.BaseURL,
		UserID:         cfg.Asari.UserID,
		Token:          cfg.Asari.Token,
		ImageBaseURL:   cfg.Asari.ImageBaseURL,
		PageSize:       cfg.Asari.PageSize,
		PageDelay:      cfg.Sync.PageDelay,
		Timeout:        cfg.Asari.Timeout,
		MaxAttempts:    cfg.Asari.Retry.MaxAttempts,
		InitialBackoff: cfg.Asari.Retry.InitialBackoff,
		MaxBackoff:     cfg.Asari.Retry.MaxBackoff,
	}, logger)

	mapper := service.NewListingMapper(location.NewNormalizer(cfg.Location.City), source, logger)

	listingSync := service.NewListingSyncService(
		source,
		listingStore,
		imageStore,
		syncStateStore,
		txManager,
		pub,
		mapper,
		logger,
		cfg.Sync,
	)
	agentSync := service.NewAgentSyncService(source, agentStore, syncStateStore, logger, cfg.Sync)

	locker := postgres.NewAdvisoryLocker(db, postgres.SyncLockKey, logger)
	runner := service.NewRunner(agentSync, listingSync, listingStore, locker, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if runOnce {
		runCtx, runCancel := context.WithTimeout(ctx, cfg.Sync.Timeout)
		defer runCancel()
		report, err := runner.RunAll(runCtx)
		if report != nil && report.Listings != nil {
			logger.Info("sync finished",
				"created", report.Listings.Created,
				"updated", report.Listings.Updated,
				"archived", report.Listings.Archived,
				"errors", report.Listings.Errors,
			)
		}
		return err
	}

	sched, err := scheduler.NewScheduler(runner, scheduler.Config{
		Interval: cfg.Sync.Interval,
		Cron:     cfg.Sync.Cron,
		Timeout:  cfg.Sync.Timeout,
	}, logger)
	if err != nil {
		return err
	}

	server := api.NewServer(api.Config{
		Addr:          cfg.HTTP.Addr,
		TriggerSecret: cfg.HTTP.TriggerSecret,
		ReadTimeout:   cfg.HTTP.ReadTimeout,
		WriteTimeout:  cfg.HTTP.WriteTimeout,
	}, api.NewSyncHandlers(runner, cfg.Sync.Timeout, logger), logger)

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	schedDone := make(chan error, 1)
	go func() { schedDone <- sched.Start(ctx) }()

	logger.Info("starting estate syncer",
		"source", source.Name(),
		"interval", cfg.Sync.Interval,
		"cron", cfg.Sync.Cron,
		"publisher_enabled", pub != nil,
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server error", "error", err)
			runErr = err
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}

	if err := <-schedDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler error", "error", err)
		runErr = errors.Join(runErr, err)
	}

	return runErr
}
