package analytics

import (
	"fmt"
	"sort"

	"gorm.io/gorm"

	"exportsite/internal/pkg/referrers"
)

// TopReferrers counts views per traffic source. Raw referers are grouped in
// SQL and folded into source names here, so Google search URLs from every
// country land on one row. Views without a referer count as Direct.
func TopReferrers(db *gorm.DB, params QueryParams) ([]MetricCountResult, error) {
	var rows []labelCount

	query := `
    SELECT COALESCE(referer, '') AS label, COUNT(*) AS views
    FROM page_views
    WHERE created_at BETWEEN ? AND ?
    GROUP BY 1
    `

	err := db.Raw(query,
		params.From.UTC(),
		params.To.UTC(),
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching top referrers: %w", err)
	}

	bySource := make(map[string]int64, len(rows))
	for _, r := range rows {
		bySource[referrers.Source(r.Label)] += r.Views
	}

	results := make([]MetricCountResult, 0, len(bySource))
	for name, count := range bySource {
		results = append(results, MetricCountResult{Name: name, Count: count})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Count != results[j].Count {
			return results[i].Count > results[j].Count
		}
		return results[i].Name < results[j].Name
	})

	if limit := params.limit(); len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
