package timeframe

import (
	"fmt"
	"time"
)

// DateStat is one point of a time series.
type DateStat struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type BucketSize string

const (
	BucketSizeDay   BucketSize = "day"
	BucketSizeMonth BucketSize = "month"
)

// Dialect names as reported by gorm's Dialector.Name().
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// TimeFrame is a UTC window split into calendar buckets. From is the start
// of the first bucket; To is the inclusive end of the window.
type TimeFrame struct {
	From       time.Time
	To         time.Time
	BucketSize BucketSize
}

// NewTimeFrame builds a frame over [from, to] with the given bucket size.
func NewTimeFrame(from, to time.Time, bucket BucketSize) (*TimeFrame, error) {
	tf := &TimeFrame{From: from.UTC(), To: to.UTC(), BucketSize: bucket}
	if err := tf.Validate(); err != nil {
		return nil, err
	}
	return tf, nil
}

// LastMonths covers the calendar month of now and the months-1 months
// before it.
func LastMonths(now time.Time, months int) (*TimeFrame, error) {
	if months <= 0 {
		return nil, fmt.Errorf("months must be positive, got %d", months)
	}
	start := TruncateToBucket(now, BucketSizeMonth).AddDate(0, -(months - 1), 0)
	return NewTimeFrame(start, now, BucketSizeMonth)
}

// LastDays covers the day of now and the days-1 days before it.
func LastDays(now time.Time, days int) (*TimeFrame, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}
	start := TruncateToBucket(now, BucketSizeDay).AddDate(0, 0, -(days - 1))
	return NewTimeFrame(start, now, BucketSizeDay)
}

func (tf *TimeFrame) Validate() error {
	if tf.From.After(tf.To) {
		return fmt.Errorf("fromTime must be before toTime")
	}
	switch tf.BucketSize {
	case BucketSizeDay, BucketSizeMonth:
		return nil
	default:
		return fmt.Errorf("unsupported bucket size: %q", tf.BucketSize)
	}
}

func (tf *TimeFrame) Duration() time.Duration {
	return tf.To.Sub(tf.From)
}

// KeyFormat is the Go layout of the bucket keys produced by GroupByExpression.
func (tf *TimeFrame) KeyFormat() string {
	if tf.BucketSize == BucketSizeMonth {
		return "2006-01"
	}
	return "2006-01-02"
}

// GroupByExpression returns the SQL expression that maps column to a bucket
// key in KeyFormat, evaluated in UTC.
func (tf *TimeFrame) GroupByExpression(dialect, column string) (string, error) {
	switch dialect {
	case DialectSQLite:
		if tf.BucketSize == BucketSizeMonth {
			return fmt.Sprintf("strftime('%%Y-%%m', %s)", column), nil
		}
		return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s)", column), nil
	case DialectPostgres:
		if tf.BucketSize == BucketSizeMonth {
			return fmt.Sprintf("to_char(%s AT TIME ZONE 'UTC', 'YYYY-MM')", column), nil
		}
		return fmt.Sprintf("to_char(%s AT TIME ZONE 'UTC', 'YYYY-MM-DD')", column), nil
	default:
		return "", fmt.Errorf("unsupported dialect for bucketing: %s", dialect)
	}
}

// BucketKeys lists every bucket in the frame, oldest first.
func (tf *TimeFrame) BucketKeys() []string {
	keys := []string{}
	end := TruncateToBucket(tf.To, tf.BucketSize)
	for cur := TruncateToBucket(tf.From, tf.BucketSize); !cur.After(end); cur = tf.next(cur) {
		keys = append(keys, cur.Format(tf.KeyFormat()))
	}
	return keys
}

func (tf *TimeFrame) next(t time.Time) time.Time {
	if tf.BucketSize == BucketSizeMonth {
		return t.AddDate(0, 1, 0)
	}
	return t.AddDate(0, 0, 1)
}

// BuildTimeSeriesPoints returns one point per bucket in chronological
// order, taking counts from grouped and zero for buckets it lacks.
func (tf *TimeFrame) BuildTimeSeriesPoints(grouped []DateStat) []DateStat {
	counts := make(map[string]int64, len(grouped))
	for _, stat := range grouped {
		counts[stat.Date] += stat.Count
	}

	keys := tf.BucketKeys()
	points := make([]DateStat, len(keys))
	for i, key := range keys {
		points[i] = DateStat{Date: key, Count: counts[key]}
	}
	return points
}

// TruncateToBucket returns the UTC start of the bucket containing t.
func TruncateToBucket(t time.Time, bucket BucketSize) time.Time {
	utc := t.UTC()
	year, month, day := utc.Date()

	switch bucket {
	case BucketSizeMonth:
		return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	case BucketSizeDay:
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	default:
		return utc
	}
}
