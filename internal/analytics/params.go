package analytics

import (
	"fmt"
	"time"
)

const (
	DefaultDays   = 30
	DefaultMonths = 6
	DefaultLimit  = 10
	MaxLimit      = 100
	MaxDays       = 3660
	MaxMonths     = 120
)

// QueryParams scopes an aggregate query. From and To bound created_at
// inclusively; Months sizes the monthly trend, which always ends at To.
type QueryParams struct {
	From         time.Time
	To           time.Time
	Limit        int
	ResourceType string
	IncludeLocal bool
	Months       int
}

// NewQueryParams covers the last days days up to now with default limits.
func NewQueryParams(now time.Time, days int) QueryParams {
	if days <= 0 {
		days = DefaultDays
	}
	now = now.UTC()
	return QueryParams{
		From:   now.AddDate(0, 0, -days),
		To:     now,
		Limit:  DefaultLimit,
		Months: DefaultMonths,
	}
}

// Validate rejects windows and sizes the queries cannot serve.
func (p QueryParams) Validate() error {
	if p.From.After(p.To) {
		return fmt.Errorf("from must be before to")
	}
	if p.Limit < 0 || p.Limit > MaxLimit {
		return fmt.Errorf("limit must be between 0 and %d", MaxLimit)
	}
	if p.Months < 0 || p.Months > MaxMonths {
		return fmt.Errorf("months must be between 0 and %d", MaxMonths)
	}
	return nil
}

func (p QueryParams) limit() int {
	if p.Limit <= 0 {
		return DefaultLimit
	}
	return p.Limit
}

func (p QueryParams) months() int {
	if p.Months <= 0 {
		return DefaultMonths
	}
	return p.Months
}
