package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"highlight_courier/internal/api"
	"highlight_courier/internal/config"
	"highlight_courier/internal/extractor/readwise"
	"highlight_courier/internal/notifier"
	"highlight_courier/internal/scheduler"
	"highlight_courier/internal/service"
	"highlight_courier/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize notifier hand-off queue
	rabbitMQ, err := notifier.NewRabbitMQ(notifier.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rabbitMQ.Close()

	// Initialize stores
	sourceStore := postgres.NewSourceStore(db)
	highlightStore := postgres.NewHighlightStore(db)
	cycleStore := postgres.NewCycleStore(db)
	deliveryStore := postgres.NewDeliveryStore(db)
	txManager := postgres.NewTransactionManager(db)

	// Initialize extractor client
	extractor := readwise.New(readwise.Config{
		BaseURL:        cfg.Extractor.BaseURL,
		Token:          cfg.Extractor.Token,
		PageSize:       cfg.Extractor.PageSize,
		Timeout:        cfg.Extractor.Timeout,
		MaxAttempts:    cfg.Extractor.Retry.MaxAttempts,
		InitialBackoff: cfg.Extractor.Retry.InitialBackoff,
		MaxBackoff:     cfg.Extractor.Retry.MaxBackoff,
	}, logger)

	// Services
	ingestService := service.NewIngestService(
		extractor,
		sourceStore,
		highlightStore,
		cycleStore,
		txManager,
		logger,
		cfg.Ingest,
	)
	queryService := service.NewQueryService(highlightStore)
	selectionService := service.NewSelectionService(highlightStore, logger)
	analyticsService := service.NewAnalyticsService(sourceStore, highlightStore)
	maintenanceService := service.NewMaintenanceService(
		sourceStore,
		highlightStore,
		cycleStore,
		deliveryStore,
		txManager,
		logger,
	)

	ingestLoop := scheduler.NewIngestLoop(ingestService, cfg.Ingest.Interval, cfg.Ingest.Interval, logger)
	retentionLoop := scheduler.NewRetentionLoop(
		maintenanceService,
		service.CleanupPolicy{
			KeepCycleRecords:    cfg.Retention.CycleRecords,
			KeepDeliveryRecords: cfg.Retention.DeliveryRecords,
			RemoveOrphans:       true,
		},
		cfg.Retention.Interval,
		logger,
	)
	deliverySched := scheduler.NewDeliveryScheduler(
		selectionService,
		rabbitMQ,
		cycleStore,
		deliveryStore,
		logger,
		cfg.Delivery,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// HTTP admin surface
	gin.SetMode(gin.ReleaseMode)
	server := api.NewServer(
		queryService,
		selectionService,
		analyticsService,
		maintenanceService,
		deliverySched,
		logger,
	)
	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: server.Router(),
	}
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()
	go func() {
		<-ctx.Done()
		_ = httpServer.Shutdown(context.Background())
	}()

	logger.Info("starting highlight courier",
		"extractor", extractor.Name(),
		"ingest_interval", cfg.Ingest.Interval,
		"delivery_recurrence", cfg.Delivery.Recurrence,
		"delivery_time", cfg.Delivery.TimeOfDay,
	)

	go func() {
		if err := ingestLoop.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("ingest loop error", "error", err)
		}
	}()
	go func() {
		if err := retentionLoop.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("retention loop error", "error", err)
		}
	}()

	if err := deliverySched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("delivery scheduler error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
