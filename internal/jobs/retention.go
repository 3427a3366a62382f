package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

const (
	retentionInterval  = 24 * time.Hour
	retentionBatchSize = 1000
	retentionPause     = 100 * time.Millisecond
)

// ConnectionProvider hands out the shared database connection.
type ConnectionProvider interface {
	GetConnection() *gorm.DB
}

// RetentionJob deletes page views older than the configured number of days.
// It is the storage retention policy, not part of the page view lifecycle:
// ingestion and the dashboard never update or delete rows. It is only
// scheduled when retention is enabled, or run by hand via exportctl prune.
type RetentionJob struct {
	db        ConnectionProvider
	logger    *slog.Logger
	days      int
	batchSize int
	pause     time.Duration
	now       func() time.Time
}

func NewRetentionJob(db ConnectionProvider, logger *slog.Logger, days int) *RetentionJob {
	return &RetentionJob{
		db:        db,
		logger:    logger,
		days:      days,
		batchSize: retentionBatchSize,
		pause:     retentionPause,
		now:       time.Now,
	}
}

func (j *RetentionJob) Name() string            { return "page_view_retention" }
func (j *RetentionJob) Interval() time.Duration { return retentionInterval }

// Run removes expired page views in batches so inserts are never blocked
// for long.
func (j *RetentionJob) Run(ctx context.Context) error {
	if j.days <= 0 {
		return nil
	}
	db := j.db.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}
	db = db.WithContext(ctx)
	cutoff := j.now().UTC().AddDate(0, 0, -j.days)

	j.logger.Info("Starting page view retention",
		slog.Int("retention_days", j.days),
		slog.Time("cutoff_date", cutoff))

	// Subquery keeps the batch portable; SQLite lacks DELETE ... LIMIT by default.
	query := `
    DELETE FROM page_views
    WHERE id IN (
        SELECT id FROM page_views
        WHERE created_at < ?
        ORDER BY id
        LIMIT ?
    )
    `

	var totalDeleted int64
	for {
		result := db.Exec(query, cutoff, j.batchSize)
		if result.Error != nil {
			j.logger.Error("Failed to delete expired page views",
				slog.Any("error", result.Error),
				slog.Int64("deleted_so_far", totalDeleted))
			return fmt.Errorf("delete expired page views: %w", result.Error)
		}

		totalDeleted += result.RowsAffected
		if result.RowsAffected < int64(j.batchSize) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(j.pause):
		}
	}

	j.logger.Info("Page view retention finished",
		slog.Int64("deleted_count", totalDeleted),
		slog.Int("retention_days", j.days))
	return nil
}
