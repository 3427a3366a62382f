package analytics

import (
	"fmt"

	"gorm.io/gorm"
)

// TopPages counts views per page name, falling back to the path for rows
// stored without one.
func TopPages(db *gorm.DB, params QueryParams) ([]MetricCountResult, error) {
	var rows []labelCount

	query := `
    SELECT
        CASE WHEN page_name IS NULL OR page_name = '' THEN path ELSE page_name END AS label,
        COUNT(*) AS views
    FROM page_views
    WHERE created_at BETWEEN ? AND ?
    GROUP BY 1
    ORDER BY views DESC, label ASC
    LIMIT ?
    `

	err := db.Raw(query,
		params.From.UTC(),
		params.To.UTC(),
		params.limit(),
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching top pages: %w", err)
	}

	return toMetricCounts(rows), nil
}

// DeviceBreakdown counts views per device class.
func DeviceBreakdown(db *gorm.DB, params QueryParams) ([]MetricCountResult, error) {
	return breakdown(db, "device", params)
}

// BrowserBreakdown counts views per browser family.
func BrowserBreakdown(db *gorm.DB, params QueryParams) ([]MetricCountResult, error) {
	return breakdown(db, "browser", params)
}

// OSBreakdown counts views per operating system.
func OSBreakdown(db *gorm.DB, params QueryParams) ([]MetricCountResult, error) {
	return breakdown(db, "os", params)
}

// breakdown groups by one of the classifier columns. column is never user
// input.
func breakdown(db *gorm.DB, column string, params QueryParams) ([]MetricCountResult, error) {
	var rows []labelCount

	query := fmt.Sprintf(`
    SELECT %[1]s AS label, COUNT(*) AS views
    FROM page_views
    WHERE created_at BETWEEN ? AND ?
    GROUP BY %[1]s
    ORDER BY views DESC, label ASC
    LIMIT ?
    `, column)

	err := db.Raw(query,
		params.From.UTC(),
		params.To.UTC(),
		params.limit(),
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching %s breakdown: %w", column, err)
	}

	return toMetricCounts(rows), nil
}
