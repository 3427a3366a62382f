// Package seeder fills the page view log with realistic sample traffic for
// local development and dashboard demos.
package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"gorm.io/gorm"

	"exportsite/internal/pageviews"
	"exportsite/internal/pkg/geoip"
)

const insertBatchSize = 500

// ConnectionProvider hands out the open database.
type ConnectionProvider interface {
	GetConnection() *gorm.DB
}

// Seeder generates visitor journeys and writes them straight to the store,
// bypassing the ingestion queue so timestamps can be spread over the past.
type Seeder struct {
	db        ConnectionProvider
	collector *pageviews.Collector
	logger    *slog.Logger
	count     int
	months    int
	now       func() time.Time
	rnd       *rand.Rand
}

// NewSeeder creates a seeder producing roughly count page views spread
// over the last months calendar months.
func NewSeeder(db ConnectionProvider, logger *slog.Logger, count, months int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	if months <= 0 {
		months = 1
	}
	return &Seeder{
		db:        db,
		collector: pageviews.NewCollector(pageviews.CollectorOptions{Logger: logger}),
		logger:    logger,
		count:     count,
		months:    months,
		now:       time.Now,
		rnd:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
	}
}

type journeyStep struct {
	path, pageType, resourceType, slug string
}

func static(path string) journeyStep {
	return journeyStep{path: path}
}

func product(slug string) journeyStep {
	return journeyStep{path: "/products/" + slug, pageType: "DYNAMIC", resourceType: "product", slug: slug}
}

var journeys = [][]journeyStep{
	{static("/"), static("/about"), static("/contact")},
	{static("/"), static("/products"), product("basmati-rice"), static("/contact")},
	{product("olive-oil"), static("/certifications"), static("/contact")},
	{static("/"), static("/export-process"), static("/faq")},
	{static("/products"), product("cashew-nuts"), product("black-pepper"), static("/contact")},
	{static("/"), static("/products"), product("turmeric")},
	{product("basmati-rice")},
	{static("/")},
	{static("/blog"), static("/blog/incoterms-explained"), static("/export-process")},
}

var visitorOrigins = []struct {
	ip  string
	loc geoip.Location
}{
	{"203.0.113.10", geoip.Location{Country: "Germany", Region: "Hamburg", City: "Hamburg"}},
	{"203.0.113.11", geoip.Location{Country: "United States", Region: "California", City: "Los Angeles"}},
	{"203.0.113.12", geoip.Location{Country: "United Arab Emirates", Region: "Dubai", City: "Dubai"}},
	{"203.0.113.13", geoip.Location{Country: "Japan", Region: "Tokyo", City: "Tokyo"}},
	{"203.0.113.14", geoip.Location{Country: "India", Region: "Maharashtra", City: "Mumbai"}},
	{"203.0.113.15", geoip.Location{Country: "United Kingdom", Region: "England", City: "London"}},
	{"203.0.113.16", geoip.Location{Country: "Netherlands", Region: "South Holland", City: "Rotterdam"}},
	{"203.0.113.17", geoip.Location{}},
	{"192.168.1.20", geoip.LocalLocation},
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; SM-S918B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
}

var referers = []string{
	"",
	"",
	"https://www.google.com/search?q=bulk+basmati+rice+supplier",
	"https://www.linkedin.com/feed/",
	"https://www.alibaba.com/",
	"https://www.europages.co.uk/",
	"https://www.bing.com/search?q=olive+oil+exporter",
}

// Run inserts the generated page views and returns how many were written.
func (s *Seeder) Run(ctx context.Context) (int, error) {
	start := time.Now()
	db := s.db.GetConnection()
	if db == nil {
		return 0, gorm.ErrInvalidDB
	}

	s.logger.Info("Seeding page views...", slog.Int("target", s.count), slog.Int("months", s.months))

	now := s.now().UTC()
	window := now.Sub(now.AddDate(0, -s.months, 0))

	batch := make([]*pageviews.PageView, 0, insertBatchSize)
	written := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := db.WithContext(ctx).CreateInBatches(batch, insertBatchSize).Error; err != nil {
			return fmt.Errorf("insert seeded page views: %w", err)
		}
		written += len(batch)
		batch = batch[:0]
		return nil
	}

	for session := 0; written+len(batch) < s.count; session++ {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		journey := journeys[s.rnd.IntN(len(journeys))]
		origin := visitorOrigins[s.rnd.IntN(len(visitorOrigins))]
		userAgent := userAgents[s.rnd.IntN(len(userAgents))]
		referer := referers[s.rnd.IntN(len(referers))]
		sessionID := fmt.Sprintf("seed-%d", session)
		at := now.Add(-time.Duration(s.rnd.Int64N(int64(window))))

		for i, step := range journey {
			if written+len(batch) >= s.count {
				break
			}
			view, err := s.collector.Prepare(&pageviews.CollectInput{
				Path:         step.path,
				PageType:     step.pageType,
				ResourceType: step.resourceType,
				ResourceSlug: step.slug,
				SessionID:    sessionID,
				Referer:      referer,
				IPAddress:    origin.ip,
				UserAgent:    userAgent,
			})
			if err != nil {
				return written, err
			}
			view.ApplyLocation(origin.loc)
			view.CreatedAt = at.Add(time.Duration(i) * time.Duration(10+s.rnd.IntN(110)) * time.Second)
			if view.CreatedAt.After(now) {
				view.CreatedAt = now
			}
			batch = append(batch, view)

			// only the landing page carries the external referer
			referer = ""
		}

		if len(batch) >= insertBatchSize {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}

	if err := flush(); err != nil {
		return written, err
	}

	s.logger.Info("Seeding completed",
		slog.Int("page_views", written),
		slog.Duration("elapsed", time.Since(start)))
	return written, nil
}
