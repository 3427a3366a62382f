package analytics

import (
	"fmt"

	"gorm.io/gorm"

	"exportsite/internal/pageviews"
	"exportsite/internal/pkg/geoip"
)

// Totals summarises the window. Sessions counts distinct non-empty session
// ids; Countries follows the same Local rule as TopCountries.
type Totals struct {
	PageViews     int64 `json:"pageViews"`
	Sessions      int64 `json:"sessions"`
	ResourceViews int64 `json:"resourceViews"`
	Countries     int64 `json:"countries"`
}

// GetTotals computes all totals in one scan.
func GetTotals(db *gorm.DB, params QueryParams) (Totals, error) {
	var totals Totals

	query := `
    SELECT
        COUNT(*) AS page_views,
        COUNT(DISTINCT NULLIF(session_id, '')) AS sessions,
        COALESCE(SUM(CASE WHEN page_type = ? THEN 1 ELSE 0 END), 0) AS resource_views,
        COUNT(DISTINCT CASE WHEN country <> '' AND (? OR country <> ?) THEN country END) AS countries
    FROM page_views
    WHERE created_at BETWEEN ? AND ?
    `

	err := db.Raw(query,
		pageviews.PageTypeDynamic,
		params.IncludeLocal,
		geoip.LocalName,
		params.From.UTC(),
		params.To.UTC(),
	).Scan(&totals).Error
	if err != nil {
		return Totals{}, fmt.Errorf("error fetching totals: %w", err)
	}

	return totals, nil
}
