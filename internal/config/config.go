// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase   = "sqlite"
	PostgresDatabase = "postgres"
)

// Geo providers
const (
	GeoProviderHTTP    = "http"
	GeoProviderMaxMind = "maxmind"
	GeoProviderNone    = "none"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabasePath         string `mapstructure:"storagepath"`
	DatabaseDSN          string `mapstructure:"dbdsn"`
	DatabaseName         string `mapstructure:"-"` // Derived from other settings
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// Geo enrichment
	GeoProvider      string `mapstructure:"geoprovider"`
	GeoLookupURL     string `mapstructure:"geolookupurl"`
	GeoTimeoutMillis int    `mapstructure:"geotimeoutms"`
	GeoDBPath        string `mapstructure:"geodbpath"`

	// GeoLite refresh for the maxmind provider; empty key disables it
	GeoLiteLicenseKey  string `mapstructure:"geolitelicensekey"`
	GeoLiteDownloadURL string `mapstructure:"geolitedownloadurl"`

	// Ingestion pipeline
	IngestWorkers            int    `mapstructure:"ingestworkers"`
	IngestQueueSize          int    `mapstructure:"ingestqueuesize"`
	IngestTaskTimeoutSeconds int    `mapstructure:"ingesttasktimeoutseconds"`
	PageNamesFile            string `mapstructure:"pagenamesfile"`

	// Dashboard read API
	DashboardAPIKey string            `mapstructure:"dashboardapikey"`
	ResourceTables  map[string]string `mapstructure:"resourcetables"`

	// Observability
	MetricsEnabled bool `mapstructure:"metricsenabled"`

	// Data retention settings, 0 keeps events forever
	RetentionDays int `mapstructure:"retentiondays"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		loaded, err := Load()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		cfg = loaded
	})
	return cfg
}

// Load reads defaults, the optional YAML file named by EXPORTSITE_CONFIG and
// EXPORTSITE_* environment variables, in increasing precedence.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("appname", "exportsite")
	v.SetDefault("appport", "3000")
	v.SetDefault("environment", Development)
	v.SetDefault("loglevel", string(LogLevelDebug))
	v.SetDefault("logsdir", "")
	v.SetDefault("logsmaxsizeinmb", 20)
	v.SetDefault("logsmaxbackups", 10)
	v.SetDefault("logsmaxageindays", 30)
	v.SetDefault("dbtype", SQLiteDatabase)
	v.SetDefault("storagepath", "storage")
	v.SetDefault("dbdsn", "")
	v.SetDefault("dbmaxopenconns", 0)
	v.SetDefault("dbmaxidleconns", 0)
	v.SetDefault("geoprovider", GeoProviderHTTP)
	v.SetDefault("geolookupurl", "http://ip-api.com/json/%s?fields=status,country,regionName,city")
	v.SetDefault("geotimeoutms", 2000)
	v.SetDefault("geodbpath", "storage/GeoLite2-City.mmdb")
	v.SetDefault("geolitelicensekey", "")
	v.SetDefault("geolitedownloadurl", "https://download.maxmind.com/app/geoip_download?edition_id=GeoLite2-City&license_key=%s&suffix=tar.gz")
	v.SetDefault("ingestworkers", 4)
	v.SetDefault("ingestqueuesize", 1024)
	v.SetDefault("ingesttasktimeoutseconds", 10)
	v.SetDefault("pagenamesfile", "")
	v.SetDefault("dashboardapikey", "")
	v.SetDefault("resourcetables", map[string]string{"product": "products"})
	v.SetDefault("metricsenabled", true)
	v.SetDefault("retentiondays", 0)

	bindings := map[string]string{
		"appname":                  "EXPORTSITE_APP_NAME",
		"appport":                  "EXPORTSITE_APP_PORT",
		"environment":              "EXPORTSITE_ENV",
		"loglevel":                 "EXPORTSITE_LOG_LEVEL",
		"logsdir":                  "EXPORTSITE_LOGS_DIR",
		"logsmaxsizeinmb":          "EXPORTSITE_LOGS_MAX_SIZE_IN_MB",
		"logsmaxbackups":           "EXPORTSITE_LOGS_MAX_BACKUPS",
		"logsmaxageindays":         "EXPORTSITE_LOGS_MAX_AGE_IN_DAYS",
		"dbtype":                   "EXPORTSITE_DB_TYPE",
		"storagepath":              "EXPORTSITE_STORAGE_PATH",
		"dbdsn":                    "EXPORTSITE_DB_DSN",
		"dbmaxopenconns":           "EXPORTSITE_DB_MAX_OPEN_CONNS",
		"dbmaxidleconns":           "EXPORTSITE_DB_MAX_IDLE_CONNS",
		"geoprovider":              "EXPORTSITE_GEO_PROVIDER",
		"geolookupurl":             "EXPORTSITE_GEO_LOOKUP_URL",
		"geotimeoutms":             "EXPORTSITE_GEO_TIMEOUT_MS",
		"geodbpath":                "EXPORTSITE_GEO_DB_PATH",
		"geolitelicensekey":        "EXPORTSITE_GEOLITE_LICENSE_KEY",
		"geolitedownloadurl":       "EXPORTSITE_GEOLITE_DOWNLOAD_URL",
		"ingestworkers":            "EXPORTSITE_INGEST_WORKERS",
		"ingestqueuesize":          "EXPORTSITE_INGEST_QUEUE_SIZE",
		"ingesttasktimeoutseconds": "EXPORTSITE_INGEST_TASK_TIMEOUT_SECONDS",
		"pagenamesfile":            "EXPORTSITE_PAGE_NAMES_FILE",
		"dashboardapikey":          "EXPORTSITE_DASHBOARD_API_KEY",
		"metricsenabled":           "EXPORTSITE_METRICS_ENABLED",
		"retentiondays":            "EXPORTSITE_RETENTION_DAYS",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path := os.Getenv("EXPORTSITE_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	c.Environment = strings.ToLower(c.Environment)
	c.DatabaseType = strings.ToLower(c.DatabaseType)
	c.GeoProvider = strings.ToLower(c.GeoProvider)

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c.DatabaseName = c.GetDatabasePath()
	return c, nil
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validDBTypes := map[string]bool{
		SQLiteDatabase:   true,
		PostgresDatabase: true,
	}
	if !validDBTypes[c.DatabaseType] {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}
	if c.DatabaseType == PostgresDatabase && c.DatabaseDSN == "" {
		return fmt.Errorf("postgres requires EXPORTSITE_DB_DSN")
	}

	validGeoProviders := map[string]bool{
		GeoProviderHTTP:    true,
		GeoProviderMaxMind: true,
		GeoProviderNone:    true,
	}
	if !validGeoProviders[c.GeoProvider] {
		return fmt.Errorf("invalid geo provider: %s", c.GeoProvider)
	}
	if c.GeoProvider == GeoProviderHTTP && strings.Count(c.GeoLookupURL, "%s") != 1 {
		return fmt.Errorf("geo lookup url must contain exactly one %%s placeholder")
	}

	if c.IngestWorkers <= 0 {
		return fmt.Errorf("ingest workers must be positive, got %d", c.IngestWorkers)
	}
	if c.IngestQueueSize <= 0 {
		return fmt.Errorf("ingest queue size must be positive, got %d", c.IngestQueueSize)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("retention days cannot be negative")
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GeoTimeout returns the hard timeout for a single geo lookup.
func (c *Config) GeoTimeout() time.Duration {
	return time.Duration(c.GeoTimeoutMillis) * time.Millisecond
}

// IngestTaskTimeout bounds one background enrichment + insert.
func (c *Config) IngestTaskTimeout() time.Duration {
	return time.Duration(c.IngestTaskTimeoutSeconds) * time.Second
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1
// - Development/Production: 10 (concurrent dashboard reads alongside background inserts)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
