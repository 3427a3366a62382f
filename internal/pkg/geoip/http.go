package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Defaults for the ip-api compatible lookup service.
const (
	DefaultLookupURL     = "http://ip-api.com/json/%s?fields=status,country,regionName,city"
	DefaultLookupTimeout = 2 * time.Second

	statusSuccess = "success"
	maxBodyBytes  = 64 << 10
)

// lookupResponse is the provider's wire format.
type lookupResponse struct {
	Status     string `json:"status"`
	Country    string `json:"country"`
	RegionName string `json:"regionName"`
	City       string `json:"city"`
}

// HTTPResolver queries an external geo-IP HTTP service. The service is
// treated as untrusted and unreliable: one attempt, bounded by a timeout.
type HTTPResolver struct {
	urlTemplate string
	timeout     time.Duration
	client      *http.Client
	logger      *slog.Logger
}

// NewHTTPResolver creates a resolver. urlTemplate must contain a single %s
// placeholder for the escaped IP address; empty values fall back to the
// defaults.
func NewHTTPResolver(urlTemplate string, timeout time.Duration, logger *slog.Logger) *HTTPResolver {
	if urlTemplate == "" {
		urlTemplate = DefaultLookupURL
	}
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPResolver{
		urlTemplate: urlTemplate,
		timeout:     timeout,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// Resolve implements Resolver.
func (r *HTTPResolver) Resolve(ctx context.Context, ip string) Location {
	addr, short, ok := lookupAddr(ip)
	if !ok {
		return short
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	loc, err := r.lookup(ctx, addr.String())
	if err != nil {
		r.logger.Debug("Geo lookup failed", slog.String("ip", ip), slog.Any("error", err))
		return Location{}
	}
	return loc
}

func (r *HTTPResolver) lookup(ctx context.Context, ip string) (Location, error) {
	endpoint := fmt.Sprintf(r.urlTemplate, url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Location{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Location{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return Location{}, fmt.Errorf("decode response: %w", err)
	}
	if body.Status != statusSuccess {
		return Location{}, fmt.Errorf("provider status %q", body.Status)
	}
	if body.Country == "" {
		return Location{}, fmt.Errorf("provider returned no country")
	}

	return Location{Country: body.Country, Region: body.RegionName, City: body.City}, nil
}
