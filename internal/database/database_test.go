package database

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exportsite/internal/config"
	"exportsite/internal/pageviews"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		AppName:      "exportsite",
		Environment:  config.Test,
		DatabaseType: config.SQLiteDatabase,
		DatabasePath: filepath.Join(t.TempDir(), "storage"),
	}
}

func TestSQLiteDSN(t *testing.T) {
	dsn := SQLiteDSN("/tmp/app.db")
	assert.Equal(t, "/tmp/app.db?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on", dsn)

	dsn = SQLiteDSN("file:x?mode=memory")
	assert.Contains(t, dsn, "file:x?mode=memory&_journal_mode=WAL")
}

func TestInitMigrateAndClose(t *testing.T) {
	cfg := testConfig(t)
	dm := NewDBManager(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.Nil(t, dm.GetConnection())
	require.NoError(t, dm.Init())
	require.NoError(t, dm.MigrateDatabase())

	db := dm.GetConnection()
	require.NotNil(t, db)
	assert.True(t, db.Migrator().HasTable(&pageviews.PageView{}))
	assert.FileExists(t, cfg.GetDatabasePath())

	require.NoError(t, dm.Close())
	assert.Nil(t, dm.GetConnection())
	assert.NoError(t, dm.Close())
}

func TestMigrateWithoutConnection(t *testing.T) {
	dm := NewDBManager(testConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, dm.MigrateDatabase())
}

func TestUnsupportedDatabaseType(t *testing.T) {
	cfg := testConfig(t)
	cfg.DatabaseType = "oracle"
	dm := NewDBManager(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorContains(t, dm.Init(), "unsupported database type")
}

func TestPostgresRequiresDSN(t *testing.T) {
	cfg := testConfig(t)
	cfg.DatabaseType = config.PostgresDatabase
	dm := NewDBManager(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorContains(t, dm.Init(), "requires a DSN")
}
