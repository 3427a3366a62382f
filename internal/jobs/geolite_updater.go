package jobs

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// GeoLite database is updated weekly by MaxMind
	GeoLiteUpdateInterval = 7 * 24 * time.Hour
	geoLiteCheckInterval  = 24 * time.Hour
	geoLiteDownloadLimit  = 10 * time.Minute
)

// Reloader swaps in a freshly downloaded database.
type Reloader interface {
	Reload() error
}

// GeoLiteUpdaterJob keeps the MaxMind City database current. The file's
// modification time doubles as the last update time.
type GeoLiteUpdaterJob struct {
	licenseKey  string
	downloadURL string
	dbPath      string
	reloader    Reloader
	client      *http.Client
	logger      *slog.Logger
	now         func() time.Time
}

// NewGeoLiteUpdaterJob builds the job; downloadURL holds one %s for the
// license key.
func NewGeoLiteUpdaterJob(licenseKey, downloadURL, dbPath string, reloader Reloader, logger *slog.Logger) *GeoLiteUpdaterJob {
	return &GeoLiteUpdaterJob{
		licenseKey:  licenseKey,
		downloadURL: downloadURL,
		dbPath:      dbPath,
		reloader:    reloader,
		client:      &http.Client{Timeout: geoLiteDownloadLimit},
		logger:      logger,
		now:         time.Now,
	}
}

func (j *GeoLiteUpdaterJob) Name() string            { return "geolite_updater" }
func (j *GeoLiteUpdaterJob) Interval() time.Duration { return geoLiteCheckInterval }

// Run downloads a new database when the current one is missing or older
// than GeoLiteUpdateInterval.
func (j *GeoLiteUpdaterJob) Run(ctx context.Context) error {
	if j.licenseKey == "" {
		j.logger.Debug("GeoLite license key not configured, skipping update")
		return nil
	}

	lastUpdate := j.lastUpdateTime()
	if j.now().Sub(lastUpdate) < GeoLiteUpdateInterval {
		j.logger.Debug("GeoLite database is up to date",
			slog.Time("last_update", lastUpdate))
		return nil
	}

	j.logger.Info("Starting GeoLite database update", slog.Time("last_update", lastUpdate))

	if err := j.downloadAndUpdate(ctx); err != nil {
		j.logger.Error("Failed to update GeoLite database", slog.Any("error", err))
		return err
	}

	if j.reloader != nil {
		if err := j.reloader.Reload(); err != nil {
			return fmt.Errorf("reload geolite database: %w", err)
		}
	}

	j.logger.Info("GeoLite database updated successfully")
	return nil
}

func (j *GeoLiteUpdaterJob) lastUpdateTime() time.Time {
	info, err := os.Stat(j.dbPath)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func (j *GeoLiteUpdaterJob) downloadAndUpdate(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(j.dbPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(j.downloadURL, j.licenseKey), nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download GeoLite database: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	// Extract next to the target and rename so readers never see a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(j.dbPath), ".geolite-*.mmdb")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := extractMMDB(resp.Body, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to extract database: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write database: %w", err)
	}

	return os.Rename(tmp.Name(), j.dbPath)
}

// extractMMDB copies the first .mmdb entry of a tar.gz stream to dst.
func extractMMDB(src io.Reader, dst io.Writer) error {
	gzr, err := gzip.NewReader(src)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}

		if strings.HasSuffix(header.Name, ".mmdb") {
			if _, err := io.Copy(dst, tr); err != nil {
				return fmt.Errorf("failed to extract file: %w", err)
			}
			return nil
		}
	}

	return fmt.Errorf("no .mmdb file found in archive")
}
