package http

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"exportsite/internal/analytics"
)

const (
	defaultResourceType = "product"
	summaryTimeout      = 15 * time.Second
)

// ConnectionProvider hands out the shared database connection.
type ConnectionProvider interface {
	GetConnection() *gorm.DB
}

// DashboardHandler serves aggregate reads for the admin dashboard.
type DashboardHandler struct {
	db     ConnectionProvider
	namer  analytics.ResourceNamer
	logger *slog.Logger
	now    func() time.Time
}

func NewDashboardHandler(db ConnectionProvider, namer analytics.ResourceNamer, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{
		db:     db,
		namer:  namer,
		logger: logger,
		now:    time.Now,
	}
}

// SummaryAction handles GET /api/analytics/summary.
func (h *DashboardHandler) SummaryAction(c *fiber.Ctx) error {
	params, err := h.parseSummaryParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	db := h.db.GetConnection()
	if db == nil {
		h.logger.Error("Database connection unavailable")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database unavailable"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), summaryTimeout)
	defer cancel()

	summary, err := analytics.GetSummary(ctx, db, params, h.namer)
	if err != nil {
		h.logger.Error("Failed to build analytics summary", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load analytics"})
	}

	summary.Devices = convertDeviceStats(summary.Devices)
	return c.JSON(summary)
}

func (h *DashboardHandler) parseSummaryParams(c *fiber.Ctx) (analytics.QueryParams, error) {
	days, err := queryInt(c, "days", analytics.DefaultDays, 1, analytics.MaxDays)
	if err != nil {
		return analytics.QueryParams{}, err
	}
	months, err := queryInt(c, "months", analytics.DefaultMonths, 1, analytics.MaxMonths)
	if err != nil {
		return analytics.QueryParams{}, err
	}
	limit, err := queryInt(c, "limit", analytics.DefaultLimit, 1, analytics.MaxLimit)
	if err != nil {
		return analytics.QueryParams{}, err
	}

	includeLocal := false
	if raw := c.Query("include_local"); raw != "" {
		includeLocal, err = strconv.ParseBool(raw)
		if err != nil {
			return analytics.QueryParams{}, fmt.Errorf("include_local must be a boolean")
		}
	}

	params := analytics.NewQueryParams(h.now(), days)
	params.Months = months
	params.Limit = limit
	params.IncludeLocal = includeLocal
	params.ResourceType = utils.CopyString(c.Query("resource", defaultResourceType))
	return params, nil
}

func queryInt(c *fiber.Ctx, key string, def, min, max int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		return 0, fmt.Errorf("%s must be an integer between %d and %d", key, min, max)
	}
	return n, nil
}

func convertDeviceStats(items []analytics.MetricCountResult) []analytics.MetricCountResult {
	caser := cases.Title(language.AmericanEnglish)

	result := make([]analytics.MetricCountResult, len(items))
	for i, item := range items {
		result[i] = analytics.MetricCountResult{
			Name:  caser.String(item.Name),
			Count: item.Count,
		}
	}
	return result
}
