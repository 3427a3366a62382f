// Package internal wires the exportsite application together.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"

	"exportsite/internal/config"
	"exportsite/internal/database"
	"exportsite/internal/jobs"
	"exportsite/internal/logging"
	"exportsite/internal/metrics"
	"exportsite/internal/pageviews"
	"exportsite/internal/pkg/async"
	"exportsite/internal/pkg/geoip"
)

const (
	serverReadTimeout  = 10 * time.Second
	serverWriteTimeout = 30 * time.Second
	serverIdleTimeout  = 120 * time.Second
)

// Application holds every long-lived component of the service.
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	DBManager *database.DBManager
	Server    *fiber.App
	Pool      *async.Pool
	Collector *pageviews.Collector
	Metrics   *metrics.Metrics
	Scheduler *jobs.Scheduler

	resolver geoip.Resolver
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	return NewAppWithLogger(cfg, logging.NewLogger(cfg))
}

// NewAppWithLogger is NewAppWithConfig with an explicit logger.
func NewAppWithLogger(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	namer, err := pageviews.LoadPageNamer(cfg.PageNamesFile)
	if err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to load page names: %w", err)
	}

	resolver, err := newResolver(cfg, logger)
	if err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to initialize geo resolver: %w", err)
	}

	pool := async.NewPool(cfg.IngestWorkers, cfg.IngestQueueSize, cfg.IngestTaskTimeout(), logger)

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New(pool.Pending)
	}

	collector := pageviews.NewCollector(pageviews.CollectorOptions{
		Store:      pageviews.NewGormStore(dbManager.GetConnection()),
		Dispatcher: pool,
		Resolver:   resolver,
		Namer:      namer,
		Recorder:   m,
		Logger:     logger,
	})

	app := &Application{
		Config:    cfg,
		Logger:    logger,
		DBManager: dbManager,
		Pool:      pool,
		Collector: collector,
		Metrics:   m,
		Scheduler: jobs.NewScheduler(logger, backgroundJobs(cfg, dbManager, resolver, logger)...),
		resolver:  resolver,
		Server: fiber.New(fiber.Config{
			AppName:               cfg.AppName,
			DisableStartupMessage: true,
			ReadTimeout:           serverReadTimeout,
			WriteTimeout:          serverWriteTimeout,
			IdleTimeout:           serverIdleTimeout,
		}),
	}
	MountAppRoutes(app)

	return app, nil
}

func newResolver(cfg *config.Config, logger *slog.Logger) (geoip.Resolver, error) {
	switch cfg.GeoProvider {
	case config.GeoProviderHTTP:
		return geoip.NewHTTPResolver(cfg.GeoLookupURL, cfg.GeoTimeout(), logger), nil
	case config.GeoProviderMaxMind:
		resolver := geoip.NewMaxMindResolver(cfg.GeoDBPath, logger)
		if err := resolver.Reload(); err != nil {
			// The updater job downloads the database later.
			if cfg.GeoLiteLicenseKey == "" {
				return nil, err
			}
			logger.Warn("GeoLite database not available yet", slog.Any("error", err))
		}
		return resolver, nil
	default:
		return geoip.Noop{}, nil
	}
}

func backgroundJobs(cfg *config.Config, db *database.DBManager, resolver geoip.Resolver, logger *slog.Logger) []jobs.Job {
	var list []jobs.Job
	if cfg.RetentionDays > 0 {
		list = append(list, jobs.NewRetentionJob(db, logger, cfg.RetentionDays))
	}
	if mm, ok := resolver.(*geoip.MaxMindResolver); ok && cfg.GeoLiteLicenseKey != "" {
		list = append(list, jobs.NewGeoLiteUpdaterJob(cfg.GeoLiteLicenseKey, cfg.GeoLiteDownloadURL, cfg.GeoDBPath, mm, logger))
	}
	return list
}

// StartAsync starts the ingestion workers, the job scheduler and the HTTP
// listener, then returns. Bind errors are reported synchronously.
func (a *Application) StartAsync() error {
	ln, err := net.Listen("tcp", ":"+a.Config.AppPort)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", a.Config.AppPort, err)
	}

	a.Pool.Start()
	a.Scheduler.Start()

	go func() {
		if err := a.Server.Listener(ln); err != nil {
			a.Logger.Error("HTTP server stopped", slog.Any("error", err))
		}
	}()

	a.Logger.Info("Application started",
		slog.String("port", a.Config.AppPort),
		slog.String("environment", a.Config.Environment),
		slog.String("geo_provider", a.Config.GeoProvider))
	return nil
}

// Shutdown stops accepting requests, drains queued page views within ctx and
// releases storage.
func (a *Application) Shutdown(ctx context.Context) error {
	var errs []error

	if err := a.Server.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}

	a.Scheduler.Stop()

	if err := a.Pool.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("ingest pool: %w", err))
	}

	if closer, ok := a.resolver.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("geo resolver: %w", err))
		}
	}

	if err := a.DBManager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}

	return errors.Join(errs...)
}
