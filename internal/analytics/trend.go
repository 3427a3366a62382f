package analytics

import (
	"fmt"

	"gorm.io/gorm"

	"exportsite/internal/timeframe"
)

// MonthlyTrend returns params.Months calendar months ending with the month
// of params.To, oldest first, with zero for months without views.
func MonthlyTrend(db *gorm.DB, params QueryParams) ([]timeframe.DateStat, error) {
	tf, err := timeframe.LastMonths(params.To, params.months())
	if err != nil {
		return nil, err
	}
	return series(db, tf)
}

// DailyTrend returns one zero-filled point per UTC day of the window.
func DailyTrend(db *gorm.DB, params QueryParams) ([]timeframe.DateStat, error) {
	tf, err := timeframe.NewTimeFrame(params.From, params.To, timeframe.BucketSizeDay)
	if err != nil {
		return nil, err
	}
	return series(db, tf)
}

func series(db *gorm.DB, tf *timeframe.TimeFrame) ([]timeframe.DateStat, error) {
	bucket, err := tf.GroupByExpression(dialect(db), "created_at")
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Bucket string
		Views  int64
	}

	query := fmt.Sprintf(`
    SELECT %s AS bucket, COUNT(*) AS views
    FROM page_views
    WHERE created_at BETWEEN ? AND ?
    GROUP BY 1
    `, bucket)

	if err := db.Raw(query, tf.From, tf.To).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("error fetching %s trend: %w", tf.BucketSize, err)
	}

	grouped := make([]timeframe.DateStat, len(rows))
	for i, r := range rows {
		grouped[i] = timeframe.DateStat{Date: r.Bucket, Count: r.Views}
	}
	return tf.BuildTimeSeriesPoints(grouped), nil
}
