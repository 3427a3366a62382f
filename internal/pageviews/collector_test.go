package pageviews_test

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exportsite/internal/pageviews"
	"exportsite/internal/pkg/async"
	"exportsite/internal/pkg/geoip"
	"exportsite/internal/testsupport"
)

const chromeOnWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var sessionIDPattern = regexp.MustCompile(`^[0-9a-z]+-[0-9a-f]{8}$`)

// inlineDispatcher runs tasks on the calling goroutine.
type inlineDispatcher struct {
	mu   sync.Mutex
	errs []error
}

func (d *inlineDispatcher) Submit(task async.Task) bool {
	err := task.Execute(context.Background())
	d.mu.Lock()
	d.errs = append(d.errs, err)
	d.mu.Unlock()
	return true
}

type rejectingDispatcher struct{}

func (rejectingDispatcher) Submit(async.Task) bool { return false }

type fakeResolver struct {
	loc   geoip.Location
	calls atomic.Int32
}

func (r *fakeResolver) Resolve(_ context.Context, _ string) geoip.Location {
	r.calls.Add(1)
	return r.loc
}

type memoryStore struct {
	mu    sync.Mutex
	views []pageviews.PageView
	err   error
}

func (s *memoryStore) Insert(_ context.Context, view *pageviews.PageView) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.views = append(s.views, *view)
	return nil
}

type countingRecorder struct {
	accepted, dropped, persisted, failed atomic.Int32
	outcomes                             sync.Map
}

func (r *countingRecorder) PageViewAccepted()  { r.accepted.Add(1) }
func (r *countingRecorder) PageViewDropped()   { r.dropped.Add(1) }
func (r *countingRecorder) PageViewPersisted() { r.persisted.Add(1) }
func (r *countingRecorder) PageViewFailed()    { r.failed.Add(1) }
func (r *countingRecorder) GeoLookup(outcome string, _ time.Duration) {
	r.outcomes.Store(outcome, true)
}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.FixedZone("CET", 3600))

func newCollector(store pageviews.Store, dispatcher pageviews.Dispatcher, resolver geoip.Resolver, rec pageviews.Recorder) *pageviews.Collector {
	return pageviews.NewCollector(pageviews.CollectorOptions{
		Store:      store,
		Dispatcher: dispatcher,
		Resolver:   resolver,
		Recorder:   rec,
		Logger:     testsupport.GetLogger(),
		Now:        func() time.Time { return fixedNow },
	})
}

func TestCollectStaticPage(t *testing.T) {
	store := &memoryStore{}
	resolver := &fakeResolver{loc: geoip.Location{Country: "Germany", Region: "Bavaria", City: "Munich"}}
	rec := &countingRecorder{}
	c := newCollector(store, &inlineDispatcher{}, resolver, rec)

	err := c.Collect(&pageviews.CollectInput{
		Path:      "/about",
		IPAddress: "203.0.113.9",
		UserAgent: chromeOnWindows,
		Referer:   "https://www.google.com/",
	})
	require.NoError(t, err)
	require.Len(t, store.views, 1)

	view := store.views[0]
	assert.Equal(t, "/about", view.Path)
	assert.Equal(t, "About Us", view.PageName)
	assert.Equal(t, pageviews.PageTypeStatic, view.PageType)
	assert.Equal(t, "desktop", view.Device)
	assert.Equal(t, "Chrome", view.Browser)
	assert.Equal(t, "Windows", view.OS)
	assert.Equal(t, "Germany", view.Country)
	assert.Equal(t, "Bavaria", view.Region)
	assert.Equal(t, "Munich", view.City)
	assert.Equal(t, "https://www.google.com/", view.Referer)
	assert.Regexp(t, sessionIDPattern, view.SessionID)
	assert.Equal(t, fixedNow.UTC(), view.CreatedAt)
	assert.Equal(t, time.UTC, view.CreatedAt.Location())

	assert.EqualValues(t, 1, rec.accepted.Load())
	assert.EqualValues(t, 1, rec.persisted.Load())
	_, ok := rec.outcomes.Load(pageviews.GeoOutcomeResolved)
	assert.True(t, ok)
}

func TestCollectKeepsClientValues(t *testing.T) {
	store := &memoryStore{}
	c := newCollector(store, &inlineDispatcher{}, geoip.Noop{}, nil)

	err := c.Collect(&pageviews.CollectInput{
		Path:         "/products/basmati",
		PageName:     "Basmati Rice",
		PageType:     "dynamic",
		ResourceType: "product",
		ResourceID:   "p1",
		ResourceSlug: "basmati",
		SessionID:    "client-session",
	})
	require.NoError(t, err)
	require.Len(t, store.views, 1)

	view := store.views[0]
	assert.Equal(t, "Basmati Rice", view.PageName)
	assert.Equal(t, pageviews.PageTypeDynamic, view.PageType)
	assert.Equal(t, "product", view.ResourceType)
	assert.Equal(t, "p1", view.ResourceID)
	assert.Equal(t, "basmati", view.ResourceSlug)
	assert.Equal(t, "client-session", view.SessionID)
	assert.True(t, view.IsResourceView())
}

func TestPageTypeDefaults(t *testing.T) {
	tests := []struct {
		name  string
		input pageviews.CollectInput
		want  pageviews.PageType
	}{
		{"absent without resource", pageviews.CollectInput{Path: "/"}, pageviews.PageTypeStatic},
		{"absent with resource", pageviews.CollectInput{Path: "/x", ResourceType: "product", ResourceID: "1"}, pageviews.PageTypeDynamic},
		{"dynamic without resource", pageviews.CollectInput{Path: "/x", PageType: "DYNAMIC"}, pageviews.PageTypeStatic},
		{"unknown value", pageviews.CollectInput{Path: "/x", PageType: "landing"}, pageviews.PageTypeStatic},
		{"explicit static with resource", pageviews.CollectInput{Path: "/x", PageType: "static", ResourceID: "1"}, pageviews.PageTypeStatic},
	}

	c := newCollector(&memoryStore{}, &inlineDispatcher{}, geoip.Noop{}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.input
			view, err := c.Prepare(&input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, view.PageType)
		})
	}
}

func TestCollectRequiresPath(t *testing.T) {
	store := &memoryStore{}
	resolver := &fakeResolver{}
	c := newCollector(store, &inlineDispatcher{}, resolver, nil)

	assert.ErrorIs(t, c.Collect(&pageviews.CollectInput{Path: "   "}), pageviews.ErrPathRequired)
	assert.ErrorIs(t, c.Collect(nil), pageviews.ErrPathRequired)
	assert.Empty(t, store.views)
	assert.Zero(t, resolver.calls.Load())
}

func TestCollectTruncatesLongFields(t *testing.T) {
	store := &memoryStore{}
	c := newCollector(store, &inlineDispatcher{}, geoip.Noop{}, nil)

	require.NoError(t, c.Collect(&pageviews.CollectInput{
		Path:      "/" + strings.Repeat("a", 5000),
		PageName:  strings.Repeat("n", 400),
		UserAgent: strings.Repeat("u", 1000),
	}))
	require.Len(t, store.views, 1)

	view := store.views[0]
	assert.Len(t, view.Path, 2048)
	assert.Len(t, view.PageName, 255)
	assert.Len(t, view.UserAgent, 512)
}

func TestCollectQueueFull(t *testing.T) {
	store := &memoryStore{}
	rec := &countingRecorder{}
	c := newCollector(store, rejectingDispatcher{}, geoip.Noop{}, rec)

	err := c.Collect(&pageviews.CollectInput{Path: "/"})
	assert.ErrorIs(t, err, pageviews.ErrQueueFull)
	assert.Empty(t, store.views)
	assert.EqualValues(t, 1, rec.dropped.Load())
	assert.Zero(t, rec.accepted.Load())
}

func TestStoreFailureIsReportedNotPanicked(t *testing.T) {
	store := &memoryStore{err: errors.New("disk full")}
	dispatcher := &inlineDispatcher{}
	rec := &countingRecorder{}
	c := newCollector(store, dispatcher, geoip.Noop{}, rec)

	// The request side still succeeds; only the background task fails.
	require.NoError(t, c.Collect(&pageviews.CollectInput{Path: "/"}))
	require.Len(t, dispatcher.errs, 1)
	assert.EqualError(t, dispatcher.errs[0], "disk full")
	assert.EqualValues(t, 1, rec.failed.Load())
	assert.Zero(t, rec.persisted.Load())
}

func TestEmptyLocationLeavesGeoFieldsBlank(t *testing.T) {
	store := &memoryStore{}
	rec := &countingRecorder{}
	c := newCollector(store, &inlineDispatcher{}, &fakeResolver{}, rec)

	require.NoError(t, c.Collect(&pageviews.CollectInput{Path: "/", IPAddress: "198.51.100.1"}))
	require.Len(t, store.views, 1)
	assert.Empty(t, store.views[0].Country)
	assert.Empty(t, store.views[0].Region)
	assert.Empty(t, store.views[0].City)
	_, ok := rec.outcomes.Load(pageviews.GeoOutcomeEmpty)
	assert.True(t, ok)
}

func TestMissingIPBecomesUnknown(t *testing.T) {
	c := newCollector(&memoryStore{}, &inlineDispatcher{}, geoip.Noop{}, nil)
	view, err := c.Prepare(&pageviews.CollectInput{Path: "/"})
	require.NoError(t, err)
	assert.Equal(t, "unknown", view.IPAddress)
}

func TestCollectThroughPoolIntoDatabase(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	pool := async.NewPool(2, 16, time.Second, logger)
	pool.Start()

	c := pageviews.NewCollector(pageviews.CollectorOptions{
		Store:      pageviews.NewGormStore(db),
		Dispatcher: pool,
		Resolver:   &fakeResolver{loc: geoip.LocalLocation},
		Logger:     logger,
	})

	for _, path := range []string{"/", "/", "/products"} {
		require.NoError(t, c.Collect(&pageviews.CollectInput{Path: path, IPAddress: "127.0.0.1"}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Stop(ctx))

	assert.EqualValues(t, 3, testsupport.CountPageViews(t, db))

	var local int64
	require.NoError(t, db.Model(&pageviews.PageView{}).
		Where("country = ? AND region = ? AND city = ?", "Local", "Local", "Local").
		Count(&local).Error)
	assert.EqualValues(t, 3, local)
}
