package pageviews

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Store persists page views. Inserts are independent appends; no
// transaction spans more than one event.
type Store interface {
	Insert(ctx context.Context, view *PageView) error
}

const (
	writeAttempts = 3
	writeBackoff  = 50 * time.Millisecond
)

// GormStore writes page views through GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Insert appends view. SQLite lock contention is retried briefly; every
// other error is returned as is.
func (s *GormStore) Insert(ctx context.Context, view *PageView) error {
	var err error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		err = s.db.WithContext(ctx).Create(view).Error
		if err == nil || !isBusy(err) {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("insert page view: %w", ctx.Err())
		case <-time.After(time.Duration(attempt) * writeBackoff):
		}
		view.ID = 0
	}
	if err != nil {
		return fmt.Errorf("insert page view: %w", err)
	}
	return nil
}

func isBusy(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
