package internal

import (
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	v1 "exportsite/api/v1"
	"exportsite/internal/analytics"
	"exportsite/internal/http"
	"exportsite/internal/http/middleware"
)

// MountAppRoutes registers every route on app.Server.
func MountAppRoutes(app *Application) {
	srv := app.Server
	cfg := app.Config
	logger := app.Logger

	srv.Use(recover.New())

	// Public ingestion, called cross-origin from the website.
	track := v1.NewTrackHandler(app.Collector, app.Metrics, logger)
	srv.Post("/api/track", track.Track)
	srv.Options("/api/track", track.Options)

	// Dashboard read API
	namer := analytics.NewTableResourceNamer(app.DBManager.GetConnection(), cfg.ResourceTables)
	dashboard := http.NewDashboardHandler(app.DBManager, namer, logger)
	api := srv.Group("/api/analytics", middleware.DashboardAPIKeyAuth(cfg.DashboardAPIKey, logger))
	api.Get("/summary", dashboard.SummaryAction)

	// GET also answers HEAD
	health := http.NewHealthHandler(app.DBManager, logger)
	srv.Get("/_health", health.HealthIndexAction)

	if app.Metrics != nil {
		srv.Get("/metrics", adaptor.HTTPHandler(app.Metrics.Handler()))
	}
}
