// main.go - load generator for the page-view tracking endpoint
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	v1 "exportsite/api/v1"
)

// PerfConfig holds the configuration for the performance test
type PerfConfig struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	RatePerSec  int
	Timeout     time.Duration
}

// Result captures the result of a single request
type Result struct {
	Duration   time.Duration
	StatusCode int
	Error      error
}

// PerfStats aggregates results. It is only touched by the collecting
// goroutine.
type PerfStats struct {
	Total       int64
	Accepted    int64
	Failed      int64
	StatusCodes map[int]int64
	Latencies   []time.Duration
	StartTime   time.Time
	EndTime     time.Time
}

func main() {
	baseURL := flag.String("url", "http://localhost:3000", "Base URL of the API")
	concurrency := flag.Int("c", 10, "Number of concurrent clients")
	duration := flag.Duration("d", 30*time.Second, "Duration of the test")
	rate := flag.Int("rate", 0, "Target page views per second (0 = unlimited)")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg := &PerfConfig{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		RatePerSec:  *rate,
		Timeout:     *timeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	logger.Info("Starting load test",
		slog.String("target", cfg.BaseURL+"/api/track"),
		slog.Int("concurrency", cfg.Concurrency),
		slog.Duration("duration", cfg.Duration),
		slog.Int("rate", cfg.RatePerSec))

	stats := &PerfStats{StatusCodes: make(map[int]int64), StartTime: time.Now()}
	for result := range runTest(ctx, cfg) {
		stats.Add(result)
	}
	stats.EndTime = time.Now()

	printResults(os.Stdout, stats)
}

// runTest starts cfg.Concurrency clients and streams their results until
// ctx is done.
func runTest(ctx context.Context, cfg *PerfConfig) <-chan Result {
	results := make(chan Result, cfg.Concurrency*10)
	var wg sync.WaitGroup

	var interval time.Duration
	if cfg.RatePerSec > 0 {
		perWorker := float64(cfg.RatePerSec) / float64(cfg.Concurrency)
		interval = time.Duration(float64(time.Second) / perWorker)
	}

	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			client := &http.Client{Timeout: cfg.Timeout}
			rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

			var ticker *time.Ticker
			if interval > 0 {
				ticker = time.NewTicker(interval)
				defer ticker.Stop()
			}

			for {
				if ticker != nil {
					select {
					case <-ticker.C:
					case <-ctx.Done():
						return
					}
				} else if ctx.Err() != nil {
					return
				}

				result := sendRequest(ctx, client, cfg.BaseURL, rnd)
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

func sendRequest(ctx context.Context, client *http.Client, baseURL string, rnd *rand.Rand) Result {
	visit := generateVisit(rnd)
	body, err := json.Marshal(visit.Payload)
	if err != nil {
		return Result{Error: fmt.Errorf("failed to marshal payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/track", bytes.NewReader(body))
	if err != nil {
		return Result{Error: fmt.Errorf("failed to create request: %w", err)}
	}
	// sendBeacon posts JSON as text/plain
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
	req.Header.Set("User-Agent", visit.UserAgent)
	req.Header.Set("X-Forwarded-For", visit.IP)

	started := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(started)
	if err != nil {
		return Result{Duration: elapsed, Error: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return Result{Duration: elapsed, StatusCode: resp.StatusCode}
}

// Visit is one simulated tracking call.
type Visit struct {
	Payload   v1.TrackPayload
	UserAgent string
	IP        string
}

var (
	staticPaths  = []string{"/", "/about", "/products", "/contact", "/export-process", "/certifications", "/faq"}
	productSlugs = []string{"basmati-rice", "olive-oil", "cashew-nuts", "black-pepper", "turmeric", "green-coffee"}
	referers     = []string{
		"https://www.google.com/search?q=bulk+rice+exporter",
		"https://www.linkedin.com/feed/",
		"https://www.alibaba.com/",
		"https://www.bing.com/search?q=olive+oil+supplier",
		"https://www.europages.co.uk/",
	}
	userAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 14; SM-S918B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
	}
)

// generateVisit returns a random static or product page view. Roughly a
// third of visits land on a product page; 30% arrive without a referer.
func generateVisit(rnd *rand.Rand) Visit {
	var payload v1.TrackPayload
	if rnd.Intn(3) == 0 {
		slug := productSlugs[rnd.Intn(len(productSlugs))]
		payload = v1.TrackPayload{
			Path:         "/products/" + slug,
			PageType:     "DYNAMIC",
			ResourceType: "product",
			ResourceSlug: slug,
		}
	} else {
		payload = v1.TrackPayload{Path: staticPaths[rnd.Intn(len(staticPaths))]}
	}

	if rnd.Float64() >= 0.3 {
		payload.Referer = referers[rnd.Intn(len(referers))]
	}
	payload.SessionID = fmt.Sprintf("perf-%d", rnd.Intn(500))

	return Visit{
		Payload:   payload,
		UserAgent: userAgents[rnd.Intn(len(userAgents))],
		// TEST-NET-3, never resolves to a real location
		IP: fmt.Sprintf("203.0.113.%d", rnd.Intn(254)+1),
	}
}

// Add records one result.
func (s *PerfStats) Add(r Result) {
	s.Total++
	if r.Error != nil {
		s.Failed++
		return
	}
	s.StatusCodes[r.StatusCode]++
	s.Latencies = append(s.Latencies, r.Duration)
	if r.StatusCode == http.StatusAccepted {
		s.Accepted++
	} else {
		s.Failed++
	}
}

// Percentile returns the p-th latency percentile (0 < p <= 1).
func (s *PerfStats) Percentile(p float64) time.Duration {
	if len(s.Latencies) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), s.Latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted))*p) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

func printResults(out io.Writer, s *PerfStats) {
	elapsed := s.EndTime.Sub(s.StartTime)
	rps := 0.0
	if elapsed > 0 {
		rps = float64(s.Total) / elapsed.Seconds()
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\nMETRIC\tVALUE\n")
	fmt.Fprintf(w, "------\t-----\n")
	fmt.Fprintf(w, "Duration\t%v\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Requests\t%d\n", s.Total)
	fmt.Fprintf(w, "Accepted (202)\t%d\n", s.Accepted)
	fmt.Fprintf(w, "Failed\t%d\n", s.Failed)
	fmt.Fprintf(w, "Requests/sec\t%.2f\n", rps)
	fmt.Fprintf(w, "p50\t%v\n", s.Percentile(0.50))
	fmt.Fprintf(w, "p95\t%v\n", s.Percentile(0.95))
	fmt.Fprintf(w, "p99\t%v\n", s.Percentile(0.99))
	w.Flush()

	codes := make([]int, 0, len(s.StatusCodes))
	for code := range s.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\nSTATUS\tCOUNT\n")
	for _, code := range codes {
		fmt.Fprintf(w, "%d\t%d\n", code, s.StatusCodes[code])
	}
	w.Flush()
}
