// Package analytics answers dashboard questions over the page view log.
//
// Every function is a read-only aggregate over page_views filtered by the
// created_at window in QueryParams:
//   - metrics.go: top pages and device/browser/OS breakdowns
//   - countries.go: country breakdown with ISO codes
//   - resources.go: most viewed resources and their display names
//   - referrers.go: traffic sources derived from the Referer
//   - trend.go: zero-filled monthly and daily series
//   - totals.go: window totals
//   - summary.go: everything above in one concurrent call
//
// Ties are broken by label so repeated calls over the same data return the
// same order.
package analytics

import "gorm.io/gorm"

// MetricCountResult represents a generic key-count pair for query results
type MetricCountResult struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

func toMetricCounts(rows []labelCount) []MetricCountResult {
	results := make([]MetricCountResult, len(rows))
	for i, r := range rows {
		results[i] = MetricCountResult{Name: r.Label, Count: r.Views}
	}
	return results
}

type labelCount struct {
	Label string
	Views int64
}

func dialect(db *gorm.DB) string {
	return db.Dialector.Name()
}
