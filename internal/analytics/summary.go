package analytics

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"exportsite/internal/timeframe"
)

// Summary is the dashboard payload.
type Summary struct {
	From             time.Time             `json:"from"`
	To               time.Time             `json:"to"`
	Totals           Totals                `json:"totals"`
	TopPages         []MetricCountResult   `json:"topPages"`
	TopResources     []ResourceCountResult `json:"topResources"`
	TopCountries     []CountryCountResult  `json:"topCountries"`
	TopReferrers     []MetricCountResult   `json:"topReferrers"`
	MonthlyTrend     []timeframe.DateStat  `json:"monthlyTrend"`
	DailyTrend       []timeframe.DateStat  `json:"dailyTrend"`
	Devices          []MetricCountResult   `json:"devices"`
	Browsers         []MetricCountResult   `json:"browsers"`
	OperatingSystems []MetricCountResult   `json:"operatingSystems"`
}

// GetSummary runs every dashboard query concurrently. The first error
// cancels the rest and is returned.
func GetSummary(ctx context.Context, db *gorm.DB, params QueryParams, namer ResourceNamer) (*Summary, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	summary := &Summary{From: params.From.UTC(), To: params.To.UTC()}
	g, gctx := errgroup.WithContext(ctx)
	conn := db.WithContext(gctx)

	g.Go(func() (err error) {
		summary.Totals, err = GetTotals(conn, params)
		return err
	})
	g.Go(func() (err error) {
		summary.TopPages, err = TopPages(conn, params)
		return err
	})
	g.Go(func() (err error) {
		summary.TopResources, err = TopResources(conn, params, namer)
		return err
	})
	g.Go(func() (err error) {
		summary.TopCountries, err = TopCountries(conn, params)
		return err
	})
	g.Go(func() (err error) {
		summary.TopReferrers, err = TopReferrers(conn, params)
		return err
	})
	g.Go(func() (err error) {
		summary.MonthlyTrend, err = MonthlyTrend(conn, params)
		return err
	})
	g.Go(func() (err error) {
		summary.DailyTrend, err = DailyTrend(conn, params)
		return err
	})
	g.Go(func() (err error) {
		summary.Devices, err = DeviceBreakdown(conn, params)
		return err
	})
	g.Go(func() (err error) {
		summary.Browsers, err = BrowserBreakdown(conn, params)
		return err
	})
	g.Go(func() (err error) {
		summary.OperatingSystems, err = OSBreakdown(conn, params)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summary, nil
}
