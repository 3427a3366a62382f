package timeframe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exportsite/internal/timeframe"
)

func TestLastMonths(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	tf, err := timeframe.LastMonths(now, 6)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), tf.From)
	assert.Equal(t, now, tf.To)
	assert.Equal(t, []string{"2025-10", "2025-11", "2025-12", "2026-01", "2026-02", "2026-03"}, tf.BucketKeys())
}

func TestLastMonthsAcrossShortMonths(t *testing.T) {
	// Truncating first keeps AddDate from normalising 31 Mar into 3 Mar.
	now := time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC)

	tf, err := timeframe.LastMonths(now, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-02", "2026-03"}, tf.BucketKeys())
}

func TestLastMonthsUsesUTC(t *testing.T) {
	// 00:30 on 1 April in UTC+2 is still March in UTC.
	now := time.Date(2026, 4, 1, 0, 30, 0, 0, time.FixedZone("EET", 2*3600))

	tf, err := timeframe.LastMonths(now, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-03"}, tf.BucketKeys())
}

func TestLastDays(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	tf, err := timeframe.LastDays(now, 3)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), tf.From)
	assert.Equal(t, []string{"2026-02-28", "2026-03-01", "2026-03-02"}, tf.BucketKeys())
}

func TestInvalidFrames(t *testing.T) {
	now := time.Now()

	_, err := timeframe.LastMonths(now, 0)
	assert.Error(t, err)
	_, err = timeframe.LastDays(now, -1)
	assert.Error(t, err)
	_, err = timeframe.NewTimeFrame(now, now.Add(-time.Hour), timeframe.BucketSizeDay)
	assert.Error(t, err)
	_, err = timeframe.NewTimeFrame(now, now, "week")
	assert.Error(t, err)
}

func TestBuildTimeSeriesPointsZeroFills(t *testing.T) {
	now := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	tf, err := timeframe.LastMonths(now, 6)
	require.NoError(t, err)

	points := tf.BuildTimeSeriesPoints([]timeframe.DateStat{
		{Date: "2026-06", Count: 4},
		{Date: "2026-02", Count: 2},
		{Date: "2024-01", Count: 99},
	})

	require.Len(t, points, 6)
	assert.Equal(t, []timeframe.DateStat{
		{Date: "2026-01", Count: 0},
		{Date: "2026-02", Count: 2},
		{Date: "2026-03", Count: 0},
		{Date: "2026-04", Count: 0},
		{Date: "2026-05", Count: 0},
		{Date: "2026-06", Count: 4},
	}, points)
}

func TestGroupByExpression(t *testing.T) {
	month := &timeframe.TimeFrame{BucketSize: timeframe.BucketSizeMonth}
	day := &timeframe.TimeFrame{BucketSize: timeframe.BucketSizeDay}

	expr, err := month.GroupByExpression(timeframe.DialectSQLite, "created_at")
	require.NoError(t, err)
	assert.Equal(t, "strftime('%Y-%m', created_at)", expr)

	expr, err = day.GroupByExpression(timeframe.DialectSQLite, "created_at")
	require.NoError(t, err)
	assert.Equal(t, "strftime('%Y-%m-%d', created_at)", expr)

	expr, err = month.GroupByExpression(timeframe.DialectPostgres, "created_at")
	require.NoError(t, err)
	assert.Equal(t, "to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM')", expr)

	_, err = month.GroupByExpression("mysql", "created_at")
	assert.Error(t, err)
}

func TestTruncateToBucket(t *testing.T) {
	ts := time.Date(2026, 7, 19, 17, 45, 3, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), timeframe.TruncateToBucket(ts, timeframe.BucketSizeMonth))
	assert.Equal(t, time.Date(2026, 7, 19, 0, 0, 0, 0, time.UTC), timeframe.TruncateToBucket(ts, timeframe.BucketSizeDay))
}
