package database

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"exportsite/internal/config"
	"exportsite/internal/pageviews"
)

const busyTimeoutMillis = 5000

// DBManager owns the GORM connection for the process.
type DBManager struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB
}

// NewDBManager creates a manager; call Init before use.
func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	return &DBManager{cfg: cfg, logger: logger}
}

// Models lists every table the application owns.
func Models() []any {
	return []any{
		&pageviews.PageView{},
	}
}

// Init opens the connection configured by DatabaseType.
func (dm *DBManager) Init() error {
	dialector, err := dm.dialector()
	if err != nil {
		return err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return fmt.Errorf("open %s database: %w", dm.cfg.DatabaseType, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(dm.cfg.GetMaxOpenConns())
	sqlDB.SetMaxIdleConns(dm.cfg.GetMaxIdleConns())
	sqlDB.SetConnMaxLifetime(time.Hour)

	dm.db = db
	dm.logger.Info("Database connected",
		slog.String("type", dm.cfg.DatabaseType),
		slog.Int("max_open_conns", dm.cfg.GetMaxOpenConns()))
	return nil
}

func (dm *DBManager) dialector() (gorm.Dialector, error) {
	switch dm.cfg.DatabaseType {
	case config.PostgresDatabase:
		if dm.cfg.DatabaseDSN == "" {
			return nil, fmt.Errorf("postgres database requires a DSN")
		}
		return postgres.Open(dm.cfg.DatabaseDSN), nil
	case config.SQLiteDatabase, "":
		path := dm.cfg.GetDatabasePath()
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage directory: %w", err)
			}
		}
		return sqlite.Open(SQLiteDSN(path)), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", dm.cfg.DatabaseType)
	}
}

// SQLiteDSN enables WAL, a busy timeout and immediate write transactions so
// background inserts and dashboard reads can share the file.
func SQLiteDSN(path string) string {
	params := []string{
		"_journal_mode=WAL",
		fmt.Sprintf("_busy_timeout=%d", busyTimeoutMillis),
		"_txlock=immediate",
		"_foreign_keys=on",
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}

// GetConnection returns the open connection, or nil before Init.
func (dm *DBManager) GetConnection() *gorm.DB {
	return dm.db
}

// MigrateDatabase creates or updates every table in Models.
func (dm *DBManager) MigrateDatabase() error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	if err := Migrate(db); err != nil {
		dm.logger.Error("Failed to auto-migrate database", slog.Any("error", err))
		return err
	}

	if db.Dialector.Name() == "sqlite" {
		if err := db.Exec("PRAGMA wal_checkpoint(FULL)").Error; err != nil {
			dm.logger.Warn("Failed to checkpoint WAL after migration", slog.Any("error", err))
		}
	}

	dm.logger.Info("Database migration completed successfully")
	return nil
}

// Migrate runs AutoMigrate for every model inside one transaction.
func Migrate(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(Models()...)
	})
}

// Close releases the underlying pool.
func (dm *DBManager) Close() error {
	if dm.db == nil {
		return nil
	}
	sqlDB, err := dm.db.DB()
	if err != nil {
		return err
	}
	dm.db = nil
	return sqlDB.Close()
}
