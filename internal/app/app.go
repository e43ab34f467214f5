package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"TelegramWarehouse/internal/config"
	"TelegramWarehouse/internal/infrastructure/archive"
	"TelegramWarehouse/internal/infrastructure/datalake"
	"TelegramWarehouse/internal/infrastructure/dbt"
	"TelegramWarehouse/internal/infrastructure/ml"
	"TelegramWarehouse/internal/infrastructure/scheduler"
	"TelegramWarehouse/internal/infrastructure/telegram"
	"TelegramWarehouse/internal/infrastructure/tgweb"
	"TelegramWarehouse/internal/infrastructure/warehouse"
	"TelegramWarehouse/internal/metrics"
	"TelegramWarehouse/internal/ports"
	"TelegramWarehouse/internal/report"
	"TelegramWarehouse/internal/scanner"
	"TelegramWarehouse/internal/usecase"
	"TelegramWarehouse/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	pipeline *usecase.Pipeline
}

// New builds the pipeline and its adapters from cfg.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(registry)

	store := datalake.NewStore(cfg.Store.BasePath, cfg.Store.Entity)

	client := tgweb.NewClient(&http.Client{Timeout: cfg.Scraper.Timeout}, cfg.Scraper.BaseURL)
	scraper := scanner.NewScraper(client, store, scanner.Options{
		Limit:            cfg.Scraper.Limit,
		MessageDelay:     cfg.Scraper.MessageDelay,
		ChannelDelay:     cfg.Scraper.ChannelDelay,
		MaxThrottleWaits: cfg.Scraper.MaxThrottleWaits,
	}, logger.Component(baseLogger, "scraper"), recorder)

	var connector ports.WarehouseConnector
	if dsn := cfg.DatabaseDSN(); dsn != "" {
		connector = warehouse.NewConnector(dsn, warehouse.Options{
			PageSize:          cfg.Database.PageSize,
			DetectionPageSize: cfg.Database.DetectionPageSize,
		}, baseLogger)
	} else {
		baseLogger.Warn("no database configured, load stage will fail")
	}

	transformer := dbt.NewRunner(dbt.Options{
		Binary:      cfg.Transform.Binary,
		ProjectDir:  cfg.Transform.ProjectDir,
		ProfilesDir: cfg.Transform.ProfilesDir,
		Target:      cfg.Transform.Target,
		Timeout:     cfg.Transform.Timeout,
	}, baseLogger)

	detector := ml.New(ml.Options{
		Endpoint:  cfg.ML.InferenceURL,
		APIKey:    cfg.ML.APIKey,
		Threshold: cfg.ML.Threshold,
		Timeout:   cfg.ML.Timeout,
	})

	var notifier ports.Notifier
	if n := telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID); n.Configured() {
		notifier = n
	}

	var archiver ports.Archiver
	if cfg.Archive.Enabled {
		mirror, err := archive.NewMirror(archive.Options{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			UseSSL:    cfg.Archive.UseSSL,
		}, baseLogger)
		if err != nil {
			return nil, err
		}
		archiver = mirror
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Scraper:     scraper,
		Partitions:  store,
		Warehouse:   connector,
		Transformer: transformer,
		Detector:    detector,
		Archiver:    archiver,
		Notifier:    notifier,
		Metrics:     recorder,
		Logger:      logger.Component(baseLogger, "pipeline"),
		Render:      report.Render,
		Options: usecase.PipelineOptions{
			Channels:        cfg.Scraper.Channels,
			MaxFilesPerLoad: cfg.Pipeline.MaxFilesPerLoad,
			DetectionModel:  cfg.Transform.DetectionModel,
			WarehouseTables: []string{warehouse.MessagesTable, warehouse.DetectionsTable},
			RetryDelayScale: cfg.Pipeline.RetryDelayScale,
		},
	})

	return &Application{cfg: cfg, logger: baseLogger, registry: registry, pipeline: pipeline}, nil
}

// Run executes job once for day, interpreted in the scheduler timezone.
func (a *Application) Run(ctx context.Context, job usecase.Job, day time.Time) (*usecase.RunReport, error) {
	return a.pipeline.Run(ctx, job, day.In(a.cfg.Scheduler.Location()))
}

// Schedule runs the configured job on the cron expression and serves
// metrics until ctx is cancelled.
func (a *Application) Schedule(ctx context.Context) error {
	job, err := usecase.ParseJob(a.cfg.Scheduler.Job)
	if err != nil {
		return err
	}

	driver := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, scheduler.Options{
		Location:   a.cfg.Scheduler.Location(),
		RunOnStart: a.cfg.Scheduler.RunOnStart,
	}, a.logger)
	sched := usecase.NewScheduler(driver, a.pipeline, job, logger.Component(a.logger, "scheduler"))

	server := a.metricsServer()
	serverErr := make(chan error, 1)
	if server != nil {
		go func() {
			a.logger.Info("metrics listening", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started",
		"cron", a.cfg.Scheduler.CronExpression,
		"job", string(job),
		"next", driver.Next())

	select {
	case <-ctx.Done():
	case err = <-serverErr:
		err = fmt.Errorf("metrics server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if stopErr := sched.Stop(shutdownCtx); stopErr != nil {
		a.logger.Warn("scheduler stop", "error", stopErr)
	}
	if server != nil {
		if shutErr := server.Shutdown(shutdownCtx); shutErr != nil {
			a.logger.Warn("metrics server shutdown", "error", shutErr)
		}
	}
	return err
}

// Migrate applies the embedded warehouse migrations.
func (a *Application) Migrate(ctx context.Context) error {
	dsn := a.cfg.DatabaseDSN()
	if dsn == "" {
		return errors.New("database is not configured")
	}
	return warehouse.Migrate(ctx, dsn, a.logger)
}

func (a *Application) metricsServer() *http.Server {
	if a.cfg.Metrics.ListenAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              a.cfg.Metrics.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
