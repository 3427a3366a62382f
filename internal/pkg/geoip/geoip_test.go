package geoip_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exportsite/internal/pkg/geoip"
)

// countingServer returns a lookup server and a pointer to its hit counter.
func countingServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newResolver(srv *httptest.Server, timeout time.Duration) *geoip.HTTPResolver {
	return geoip.NewHTTPResolver(srv.URL+"/json/%s", timeout, nil)
}

func TestHTTPResolverLocalShortCircuit(t *testing.T) {
	srv, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected lookup for %s", r.URL.Path)
	})
	resolver := newResolver(srv, time.Second)

	for _, ip := range []string{"127.0.0.1", "::1", "unknown", "192.168.1.5", "10.0.0.8", "172.16.4.1", "fe80::1", "::ffff:127.0.0.1"} {
		t.Run(ip, func(t *testing.T) {
			loc := resolver.Resolve(context.Background(), ip)
			assert.Equal(t, geoip.LocalLocation, loc)
			assert.True(t, loc.IsLocal())
		})
	}

	assert.Equal(t, int32(0), atomic.LoadInt32(hits), "local addresses must not trigger a lookup")
}

func TestLocalLocationJSONShape(t *testing.T) {
	data, err := json.Marshal(geoip.LocalLocation)
	require.NoError(t, err)
	assert.JSONEq(t, `{"country":"Local","regionName":"Local","city":"Local"}`, string(data))
}

func TestHTTPResolverSuccess(t *testing.T) {
	srv, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/json/8.8.8.8", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"success","country":"United States","regionName":"California","city":"Mountain View"}`)
	})

	loc := newResolver(srv, time.Second).Resolve(context.Background(), "8.8.8.8")

	assert.Equal(t, geoip.Location{Country: "United States", Region: "California", City: "Mountain View"}, loc)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestHTTPResolverFailuresReturnEmpty(t *testing.T) {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "provider failure status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"status":"fail","message":"reserved range"}`)
			},
		},
		{
			name: "non-success HTTP status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `<html>not json`)
			},
		},
		{
			name: "success without country",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"status":"success","city":"Nowhere"}`)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv, hits := countingServer(t, tc.handler)

			loc := newResolver(srv, time.Second).Resolve(context.Background(), "1.1.1.1")

			assert.True(t, loc.IsEmpty())
			assert.Equal(t, geoip.Location{}, loc)
			assert.Equal(t, int32(1), atomic.LoadInt32(hits), "lookups are never retried")
		})
	}
}

func TestHTTPResolverTimeout(t *testing.T) {
	release := make(chan struct{})
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	resolver := newResolver(srv, 50*time.Millisecond)

	start := time.Now()
	loc := resolver.Resolve(context.Background(), "1.1.1.1")

	assert.True(t, loc.IsEmpty())
	assert.Less(t, time.Since(start), 2*time.Second, "timeout must bound the lookup")
}

func TestHTTPResolverUnparseableAddress(t *testing.T) {
	srv, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"success","country":"X"}`)
	})

	loc := newResolver(srv, time.Second).Resolve(context.Background(), "not-an-ip")

	assert.True(t, loc.IsEmpty())
	assert.Equal(t, int32(0), atomic.LoadInt32(hits))
}

func TestIsLocalAddress(t *testing.T) {
	assert.True(t, geoip.IsLocalAddress("127.0.0.1"))
	assert.True(t, geoip.IsLocalAddress(" 192.168.0.10 "))
	assert.True(t, geoip.IsLocalAddress("UNKNOWN"))
	assert.False(t, geoip.IsLocalAddress("8.8.8.8"))
	assert.False(t, geoip.IsLocalAddress("2001:4860:4860::8888"))
	assert.False(t, geoip.IsLocalAddress(strings.Repeat("x", 10)))
}

func TestNoopResolver(t *testing.T) {
	assert.True(t, geoip.Noop{}.Resolve(context.Background(), "8.8.8.8").IsEmpty())
}

func TestOpenMaxMindMissingFile(t *testing.T) {
	_, err := geoip.OpenMaxMind(t.TempDir()+"/missing.mmdb", nil)
	assert.Error(t, err)
}

func TestUnloadedMaxMindResolvesLocalOnly(t *testing.T) {
	r := geoip.NewMaxMindResolver(t.TempDir()+"/later.mmdb", nil)

	assert.Equal(t, geoip.LocalLocation, r.Resolve(context.Background(), "10.1.2.3"))
	assert.True(t, r.Resolve(context.Background(), "8.8.8.8").IsEmpty())
	assert.Error(t, r.Reload())
	assert.NoError(t, r.Close())
}
