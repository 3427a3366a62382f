package testsupport

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"exportsite/internal/database"
	"exportsite/internal/pageviews"
)

var dbCounter atomic.Int64

// SetupTestDB opens a private in-memory SQLite database with every model
// migrated. The database is closed when the test ends.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", name, dbCounter.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("testsupport: failed to get sql.DB: %v", err)
	}
	// A single connection keeps the shared in-memory database alive and
	// serializes writers.
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	t.Cleanup(func() {
		sqlDB.Close()
	})

	return db
}

// GetLogger returns a logger for tests. Set TEST_LOG=1 to see output.
func GetLogger() *slog.Logger {
	if os.Getenv("TEST_LOG") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// CreatePageView inserts view, filling the columns tests rarely care about.
func CreatePageView(t *testing.T, db *gorm.DB, view pageviews.PageView) pageviews.PageView {
	t.Helper()

	if view.Path == "" {
		view.Path = "/"
	}
	if view.PageName == "" {
		view.PageName = pageviews.DefaultPageNamer().Name(view.Path)
	}
	if view.PageType == "" {
		view.PageType = pageviews.PageTypeStatic
	}
	if view.Device == "" {
		view.Device = "desktop"
	}
	if view.Browser == "" {
		view.Browser = "unknown"
	}
	if view.OS == "" {
		view.OS = "unknown"
	}
	if view.IPAddress == "" {
		view.IPAddress = "unknown"
	}
	if view.CreatedAt.IsZero() {
		view.CreatedAt = time.Now().UTC()
	} else {
		view.CreatedAt = view.CreatedAt.UTC()
	}

	if err := db.Create(&view).Error; err != nil {
		t.Fatalf("testsupport: failed to create page view: %v", err)
	}
	return view
}

// CountPageViews returns the number of stored page views.
func CountPageViews(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&pageviews.PageView{}).Count(&n).Error; err != nil {
		t.Fatalf("testsupport: failed to count page views: %v", err)
	}
	return n
}
