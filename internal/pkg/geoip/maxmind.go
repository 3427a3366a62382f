package geoip

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// MaxMindResolver answers lookups from a local GeoLite2/GeoIP2 City database.
type MaxMindResolver struct {
	mu     sync.RWMutex
	path   string
	db     *geoip2.Reader
	logger *slog.Logger
}

// NewMaxMindResolver returns a resolver for path without opening it. It
// resolves nothing until Reload succeeds.
func NewMaxMindResolver(path string, logger *slog.Logger) *MaxMindResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &MaxMindResolver{path: path, logger: logger}
}

// OpenMaxMind opens the City database at path.
func OpenMaxMind(path string, logger *slog.Logger) (*MaxMindResolver, error) {
	r := NewMaxMindResolver(path, logger)
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload reopens the database file, e.g. after a new download.
func (r *MaxMindResolver) Reload() error {
	if r.path == "" {
		return fmt.Errorf("geoip: database path not configured")
	}
	info, err := os.Stat(r.path)
	if err != nil {
		return fmt.Errorf("geoip: stat database: %w", err)
	}

	db, err := geoip2.Open(r.path)
	if err != nil {
		return fmt.Errorf("geoip: open database: %w", err)
	}

	r.mu.Lock()
	old := r.db
	r.db = db
	r.mu.Unlock()

	if old != nil {
		old.Close()
	}

	r.logger.Info("GeoIP database loaded",
		slog.String("path", r.path),
		slog.Int64("size_bytes", info.Size()),
		slog.Time("mod_time", info.ModTime()))
	return nil
}

// Resolve implements Resolver.
func (r *MaxMindResolver) Resolve(_ context.Context, ip string) Location {
	addr, short, ok := lookupAddr(ip)
	if !ok {
		return short
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.db == nil {
		return Location{}
	}

	record, err := r.db.City(net.IP(addr.AsSlice()))
	if err != nil {
		r.logger.Debug("GeoIP lookup failed", slog.String("ip", ip), slog.Any("error", err))
		return Location{}
	}

	country := record.Country.Names["en"]
	if country == "" {
		return Location{}
	}

	var region string
	if len(record.Subdivisions) > 0 {
		region = record.Subdivisions[0].Names["en"]
	}

	return Location{
		Country: country,
		Region:  region,
		City:    record.City.Names["en"],
	}
}

// Close releases the database.
func (r *MaxMindResolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}
