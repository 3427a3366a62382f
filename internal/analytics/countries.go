package analytics

import (
	"fmt"
	"sync"

	"github.com/pariz/gountries"
	"gorm.io/gorm"

	"exportsite/internal/pkg/geoip"
)

// CountryCountResult is a country with its ISO 3166 alpha-2 code, empty
// when the stored name is not a known country (such as "Local").
type CountryCountResult struct {
	Name  string `json:"name"`
	Code  string `json:"code,omitempty"`
	Count int64  `json:"count"`
}

var countryIndex = sync.OnceValue(gountries.New)

// TopCountries counts views per resolved country. Rows without a country
// are skipped; the Local pseudo-country only appears with IncludeLocal.
func TopCountries(db *gorm.DB, params QueryParams) ([]CountryCountResult, error) {
	var rows []labelCount

	query := `
    SELECT country AS label, COUNT(*) AS views
    FROM page_views
    WHERE created_at BETWEEN ? AND ?
    AND country IS NOT NULL AND country <> ''
    AND (? OR country <> ?)
    GROUP BY country
    ORDER BY views DESC, label ASC
    LIMIT ?
    `

	err := db.Raw(query,
		params.From.UTC(),
		params.To.UTC(),
		params.IncludeLocal,
		geoip.LocalName,
		params.limit(),
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching top countries: %w", err)
	}

	results := make([]CountryCountResult, len(rows))
	for i, r := range rows {
		results[i] = CountryCountResult{
			Name:  r.Label,
			Code:  CountryCode(r.Label),
			Count: r.Views,
		}
	}
	return results, nil
}

// CountryCode maps a country name as returned by the geo provider to its
// alpha-2 code.
func CountryCode(name string) string {
	if name == "" || name == geoip.LocalName {
		return ""
	}
	country, err := countryIndex().FindCountryByName(name)
	if err != nil {
		return ""
	}
	return country.Codes.Alpha2
}
