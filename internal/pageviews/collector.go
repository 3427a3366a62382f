// Package pageviews records visitor page views. Validation and
// classification happen on the request path; geo enrichment and the insert
// run as a background task the request never waits for.
package pageviews

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"exportsite/internal/pkg/async"
	"exportsite/internal/pkg/geoip"
	ua "exportsite/internal/pkg/user_agent"
	"exportsite/internal/visitors"
)

var (
	ErrPathRequired = errors.New("path is required")
	ErrQueueFull    = errors.New("ingestion queue is full")
)

// Field limits, matched to the column sizes on PageView.
const (
	maxURLLength       = 2048
	maxUserAgentLength = 512
	maxFieldLength     = 255
	maxIPLength        = 64
	maxSessionLength   = 64
)

// Geo lookup outcomes reported to the Recorder.
const (
	GeoOutcomeLocal    = "local"
	GeoOutcomeResolved = "resolved"
	GeoOutcomeEmpty    = "empty"
)

// CollectInput is one tracking call: the payload fields plus the transport
// metadata read by the handler. Only Path is required.
type CollectInput struct {
	Path         string
	PageName     string
	PageType     string
	ResourceType string
	ResourceID   string
	ResourceSlug string
	SessionID    string
	Referer      string
	IPAddress    string
	UserAgent    string
}

// Dispatcher schedules background work without blocking.
type Dispatcher interface {
	Submit(task async.Task) bool
}

// Recorder receives pipeline counters.
type Recorder interface {
	PageViewAccepted()
	PageViewDropped()
	PageViewPersisted()
	PageViewFailed()
	GeoLookup(outcome string, elapsed time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) PageViewAccepted()               {}
func (noopRecorder) PageViewDropped()                {}
func (noopRecorder) PageViewPersisted()              {}
func (noopRecorder) PageViewFailed()                 {}
func (noopRecorder) GeoLookup(string, time.Duration) {}

// CollectorOptions wires a Collector. Store and Dispatcher are required.
type CollectorOptions struct {
	Store      Store
	Dispatcher Dispatcher
	Resolver   geoip.Resolver
	Namer      *PageNamer
	Recorder   Recorder
	Logger     *slog.Logger
	Now        func() time.Time
}

// Collector turns tracking calls into persisted page views.
type Collector struct {
	store      Store
	dispatcher Dispatcher
	resolver   geoip.Resolver
	namer      *PageNamer
	recorder   Recorder
	logger     *slog.Logger
	now        func() time.Time
}

// NewCollector applies defaults for every optional dependency.
func NewCollector(opts CollectorOptions) *Collector {
	c := &Collector{
		store:      opts.Store,
		dispatcher: opts.Dispatcher,
		resolver:   opts.Resolver,
		namer:      opts.Namer,
		recorder:   opts.Recorder,
		logger:     opts.Logger,
		now:        opts.Now,
	}
	if c.resolver == nil {
		c.resolver = geoip.Noop{}
	}
	if c.namer == nil {
		c.namer = DefaultPageNamer()
	}
	if c.recorder == nil {
		c.recorder = noopRecorder{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Collect validates input, classifies it and schedules enrichment and
// persistence. It returns as soon as the task is queued.
func (c *Collector) Collect(input *CollectInput) error {
	view, err := c.Prepare(input)
	if err != nil {
		return err
	}

	queued := c.dispatcher.Submit(async.Task{
		Name: "persist_page_view",
		Execute: func(ctx context.Context) error {
			return c.Persist(ctx, view)
		},
	})
	if !queued {
		c.recorder.PageViewDropped()
		c.logger.Warn("Dropping page view, ingestion queue full", slog.String("path", view.Path))
		return ErrQueueFull
	}

	c.recorder.PageViewAccepted()
	return nil
}

// Prepare builds the event from input using only in-memory work: page name,
// page type defaults, user agent classification and session id.
func (c *Collector) Prepare(input *CollectInput) (*PageView, error) {
	if input == nil {
		return nil, ErrPathRequired
	}
	path := clip(input.Path, maxURLLength)
	if path == "" {
		return nil, ErrPathRequired
	}

	view := &PageView{
		Path:         path,
		PageName:     clip(input.PageName, maxFieldLength),
		ResourceType: clip(input.ResourceType, maxFieldLength),
		ResourceID:   clip(input.ResourceID, maxFieldLength),
		ResourceSlug: clip(input.ResourceSlug, maxFieldLength),
		SessionID:    clip(input.SessionID, maxSessionLength),
		Referer:      clip(input.Referer, maxURLLength),
		IPAddress:    clip(input.IPAddress, maxIPLength),
		UserAgent:    clip(input.UserAgent, maxUserAgentLength),
	}

	if view.PageName == "" {
		view.PageName = c.namer.Name(view.Path)
	}
	view.PageType = resolvePageType(input.PageType, view)

	classified := ua.ParseUserAgent(view.UserAgent)
	view.Device = classified.Device
	view.Browser = classified.Browser
	view.OS = classified.OS

	if view.SessionID == "" {
		view.SessionID = visitors.NewSessionID(c.now())
	}
	if view.IPAddress == "" {
		view.IPAddress = "unknown"
	}

	return view, nil
}

// Persist resolves the visitor location and inserts view. A failed lookup
// leaves the geo fields empty; it never prevents the insert.
func (c *Collector) Persist(ctx context.Context, view *PageView) error {
	started := time.Now()
	loc := c.resolver.Resolve(ctx, view.IPAddress)
	c.recorder.GeoLookup(geoOutcome(loc), time.Since(started))
	view.ApplyLocation(loc)

	view.CreatedAt = c.now().UTC()
	if err := c.store.Insert(ctx, view); err != nil {
		c.recorder.PageViewFailed()
		return err
	}

	c.recorder.PageViewPersisted()
	c.logger.Debug("Page view stored",
		slog.String("path", view.Path),
		slog.String("page_name", view.PageName),
		slog.String("country", view.Country))
	return nil
}

// resolvePageType keeps "DYNAMIC implies a resource": an explicit DYNAMIC
// without resource attributes is stored as STATIC, and an absent type with
// resource attributes becomes DYNAMIC.
func resolvePageType(raw string, view *PageView) PageType {
	hasResource := view.ResourceType != "" || view.ResourceID != "" || view.ResourceSlug != ""
	pageType, ok := ParsePageType(raw)
	switch {
	case !ok && hasResource:
		return PageTypeDynamic
	case !ok:
		return PageTypeStatic
	case pageType == PageTypeDynamic && !hasResource:
		return PageTypeStatic
	default:
		return pageType
	}
}

func geoOutcome(loc geoip.Location) string {
	switch {
	case loc.IsLocal():
		return GeoOutcomeLocal
	case loc.IsEmpty():
		return GeoOutcomeEmpty
	default:
		return GeoOutcomeResolved
	}
}

// clip trims s and cuts it to at most max bytes on a rune boundary.
func clip(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
