// main.go - Ingestion load testing tool for Vitrine
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"

	"vitrine/internal/collector"
	"vitrine/internal/events"
	"vitrine/internal/pkg/device"
	"vitrine/internal/pkg/geolocation"
)

// PerfConfig holds the configuration for the performance test
type PerfConfig struct {
	BaseURL      string
	SiteURL      string
	Concurrency  int
	Duration     time.Duration
	VisitsPerSec int
	Timeout      time.Duration
	Export       string
}

// Result captures the result of a single ingestion request
type Result struct {
	Path       string
	Duration   time.Duration
	StatusCode int
	Error      error
}

// PerfStats holds statistics about the performance test
type PerfStats struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	TransportErrors    int64
	DatabaseBusyErrors int64
	Visits             int64
	StatusCodes        map[int]int64
	PerPath            map[string]int64
	ResponseTimes      []time.Duration
	StartTime          time.Time
	EndTime            time.Time
}

func main() {
	baseURL := flag.String("url", "http://localhost:3000", "Base URL of the server")
	siteURL := flag.String("site", "https://www.example.nl", "Site the simulated visitors browse")
	concurrency := flag.Int("c", 10, "Number of concurrent visitors")
	duration := flag.Duration("d", 30*time.Second, "Duration of the test")
	visitsPerSec := flag.Int("rate", 0, "Target visits per second (0 = unlimited)")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	export := flag.String("export", "perf_results.json", "File to write results to (empty to skip)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg := &PerfConfig{
		BaseURL:      strings.TrimRight(*baseURL, "/"),
		SiteURL:      strings.TrimRight(*siteURL, "/"),
		Concurrency:  max(*concurrency, 1),
		Duration:     *duration,
		VisitsPerSec: *visitsPerSec,
		Timeout:      *timeout,
		Export:       *export,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		fmt.Printf("Received signal %v, shutting down...\n", sig)
		cancel()
	}()

	fmt.Println("\n=== Vitrine Ingestion Load Test ===")
	fmt.Printf("  Server (-url):        %s\n", cfg.BaseURL)
	fmt.Printf("  Concurrency (-c):     %d\n", cfg.Concurrency)
	fmt.Printf("  Duration (-d):        %v\n", cfg.Duration)
	fmt.Printf("  Visits/sec (-rate):   %d (0 = unlimited)\n", cfg.VisitsPerSec)
	fmt.Printf("  Timeout (-timeout):   %v\n", cfg.Timeout)
	fmt.Println("===================================")

	stats := &PerfStats{
		StatusCodes: make(map[int]int64),
		PerPath:     make(map[string]int64),
		StartTime:   time.Now(),
	}

	testCtx, testCancel := context.WithTimeout(ctx, cfg.Duration)
	defer testCancel()

	results, visits := runTest(testCtx, cfg, logger)
	for result := range results {
		processResult(result, stats)
	}
	stats.Visits = visits()
	stats.EndTime = time.Now()

	printResults(stats)
	if cfg.Export != "" {
		if err := exportResults(stats, cfg.Export); err != nil {
			fmt.Printf("Error writing results: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nDetailed results saved to '%s'\n", cfg.Export)
	}
}

// timedSink forwards rows to the server and reports every request.
type timedSink struct {
	next    *collector.HTTPSink
	results chan<- Result
}

func (s *timedSink) record(path string, write func() error) error {
	start := time.Now()
	err := write()
	result := Result{Path: path, Duration: time.Since(start), StatusCode: http.StatusAccepted}

	var statusErr *collector.StatusError
	switch {
	case errors.As(err, &statusErr):
		result.StatusCode = statusErr.StatusCode
	case err != nil:
		result.StatusCode = 0
		result.Error = err
	}
	s.results <- result
	return err
}

func (s *timedSink) UpsertSession(ctx context.Context, session *events.VisitorSession) error {
	return s.record(collector.SessionsPath, func() error { return s.next.UpsertSession(ctx, session) })
}

func (s *timedSink) InsertPageView(ctx context.Context, view *events.PageViewEvent) error {
	return s.record(collector.PageViewsPath, func() error { return s.next.InsertPageView(ctx, view) })
}

func (s *timedSink) UpsertPerformance(ctx context.Context, sample *events.PerformanceSample) error {
	return s.record(collector.PerformancePath, func() error { return s.next.UpsertPerformance(ctx, sample) })
}

func (s *timedSink) InsertFormConversion(ctx context.Context, conversion *events.FormConversionEvent) error {
	return s.record(collector.ConversionsPath, func() error { return s.next.InsertFormConversion(ctx, conversion) })
}

// nopLocator keeps the load test off external geolocation services.
type nopLocator struct{}

func (nopLocator) Lookup(context.Context, string) geolocation.Location {
	return geolocation.Default()
}

// runTest starts the workers and returns the result channel, closed once
// every worker has stopped, and a visit counter.
func runTest(ctx context.Context, cfg *PerfConfig, logger *slog.Logger) (<-chan Result, func() int64) {
	results := make(chan Result, cfg.Concurrency*10)
	var wg sync.WaitGroup
	var visitsMu sync.Mutex
	var visits int64

	interval := time.Duration(0)
	if cfg.VisitsPerSec > 0 {
		perWorker := float64(cfg.VisitsPerSec) / float64(cfg.Concurrency)
		interval = time.Duration(float64(time.Second) / perWorker)
		logger.Info("Rate limiting enabled",
			slog.Int("visitsPerSec", cfg.VisitsPerSec),
			slog.Duration("workerInterval", interval))
	}

	// Tracker write failures are already counted from the results.
	quiet := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 4}))

	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(workerID)))
			sink := &timedSink{
				next:    collector.NewHTTPSink(cfg.BaseURL, "", cfg.Timeout),
				results: results,
			}

			var ticker *time.Ticker
			if interval > 0 {
				ticker = time.NewTicker(interval)
				defer ticker.Stop()
			}

			for ctx.Err() == nil {
				if ticker != nil {
					select {
					case <-ticker.C:
					case <-ctx.Done():
						return
					}
				}
				if err := simulateVisit(ctx, cfg, sink, quiet, r); err != nil {
					logger.Error("Visit setup failed", slog.Int("worker", workerID), slog.Any("error", err))
					return
				}
				visitsMu.Lock()
				visits++
				visitsMu.Unlock()
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results, func() int64 {
		visitsMu.Lock()
		defer visitsMu.Unlock()
		return visits
	}
}

// simulateVisit runs one short journey through a fresh tracker.
func simulateVisit(ctx context.Context, cfg *PerfConfig, sink collector.Sink, logger *slog.Logger, r *rand.Rand) error {
	journey := journeys[r.IntN(len(journeys))]
	ua := userAgents[r.IntN(len(userAgents))]
	env := collector.Environment{
		URL:       cfg.SiteURL + journey[0],
		Title:     "Vitrine load test",
		Referrer:  referrers[r.IntN(len(referrers))],
		UserAgent: ua,
		Screen:    device.Screen{Width: 1440, Height: 900, ViewportWidth: 1440, ViewportHeight: 780},
	}

	tracker, err := collector.New(collector.Options{
		Storage:     collector.NewMemoryStorage(),
		Sink:        sink,
		Locator:     nopLocator{},
		Logger:      logger,
		Environment: env,
	})
	if err != nil {
		return err
	}
	defer tracker.Close()

	for i, path := range journey {
		if ctx.Err() != nil {
			return nil
		}
		if i > 0 {
			env.Referrer = env.URL
			env.URL = cfg.SiteURL + path
			tracker.Navigate(env)
		}
		tracker.TrackPageView(ctx, i == 0)
		tracker.RecordMetric(ctx, collector.MetricLCP, float64(1000+r.IntN(3000)))
	}
	if r.Float64() < 0.1 {
		tracker.TrackFormConversion(ctx, collector.FormConversion{
			FormType:  "offerte",
			Completed: r.Float64() < 0.5,
			StartedAt: time.Now().Add(-time.Minute),
		})
	}
	return nil
}

var journeys = [][]string{
	{"/"},
	{"/", "/kozijnen"},
	{"/kunststof-kozijnen", "/offerte"},
	{"/", "/deuren", "/contact"},
}

var referrers = []string{
	"",
	"https://www.google.nl/",
	"https://www.bing.com/",
	"https://www.facebook.com/",
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36",
}

// processResult folds one request into the totals
func processResult(result Result, stats *PerfStats) {
	stats.TotalRequests++
	stats.PerPath[result.Path]++

	if result.Error != nil {
		stats.FailedRequests++
		stats.TransportErrors++
		return
	}

	stats.ResponseTimes = append(stats.ResponseTimes, result.Duration)
	stats.StatusCodes[result.StatusCode]++

	switch {
	case result.StatusCode >= 200 && result.StatusCode < 300:
		stats.SuccessfulRequests++
	case result.StatusCode == http.StatusServiceUnavailable:
		stats.FailedRequests++
		stats.DatabaseBusyErrors++
	default:
		stats.FailedRequests++
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func percent(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}

// printResults displays the test results as aligned tables
func printResults(stats *PerfStats) {
	elapsed := stats.EndTime.Sub(stats.StartTime)
	slices.Sort(stats.ResponseTimes)

	fmt.Println("\nLoad Test Results:")
	fmt.Printf("Test Duration: %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Visits: %d\n", stats.Visits)
	fmt.Printf("Requests Per Second: %.2f\n", float64(stats.TotalRequests)/elapsed.Seconds())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\n%s\t%s\n", "METRIC", "VALUE")
	fmt.Fprintf(w, "%s\t%s\n", "------", "-----")
	fmt.Fprintf(w, "Total Requests\t%d\n", stats.TotalRequests)
	fmt.Fprintf(w, "Successful Requests\t%d (%.2f%%)\n", stats.SuccessfulRequests, percent(stats.SuccessfulRequests, stats.TotalRequests))
	fmt.Fprintf(w, "Failed Requests\t%d (%.2f%%)\n", stats.FailedRequests, percent(stats.FailedRequests, stats.TotalRequests))
	if stats.DatabaseBusyErrors > 0 {
		fmt.Fprintf(w, "Database Busy Errors\t%d (%.2f%%)\n", stats.DatabaseBusyErrors, percent(stats.DatabaseBusyErrors, stats.TotalRequests))
	}
	if stats.TransportErrors > 0 {
		fmt.Fprintf(w, "Transport Errors\t%d\n", stats.TransportErrors)
	}
	fmt.Fprintf(w, "p50 Latency\t%v\n", percentile(stats.ResponseTimes, 0.5))
	fmt.Fprintf(w, "p90 Latency\t%v\n", percentile(stats.ResponseTimes, 0.9))
	fmt.Fprintf(w, "p99 Latency\t%v\n", percentile(stats.ResponseTimes, 0.99))
	w.Flush()

	if len(stats.StatusCodes) > 0 {
		fmt.Println("\nStatus Code Distribution:")
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "%s\t%s\t%s\n", "STATUS CODE", "COUNT", "PERCENTAGE")
		codes := make([]int, 0, len(stats.StatusCodes))
		for code := range stats.StatusCodes {
			codes = append(codes, code)
		}
		slices.Sort(codes)
		for _, code := range codes {
			count := stats.StatusCodes[code]
			fmt.Fprintf(w, "%d\t%d\t%.2f%%\n", code, count, percent(count, stats.TotalRequests))
		}
		w.Flush()
	}

	fmt.Println("\nRequests Per Endpoint:")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, path := range []string{collector.SessionsPath, collector.PageViewsPath, collector.PerformancePath, collector.ConversionsPath} {
		fmt.Fprintf(w, "%s\t%d\n", path, stats.PerPath[path])
	}
	w.Flush()
}

// exportResults saves test results to a JSON file
func exportResults(stats *PerfStats, path string) error {
	elapsed := stats.EndTime.Sub(stats.StartTime)
	result := map[string]any{
		"summary": map[string]any{
			"visits":             stats.Visits,
			"totalRequests":      stats.TotalRequests,
			"successfulRequests": stats.SuccessfulRequests,
			"failedRequests":     stats.FailedRequests,
			"databaseBusyErrors": stats.DatabaseBusyErrors,
			"requestsPerSecond":  float64(stats.TotalRequests) / elapsed.Seconds(),
			"totalDurationMs":    elapsed.Milliseconds(),
			"p50LatencyMs":       percentile(stats.ResponseTimes, 0.5).Milliseconds(),
			"p90LatencyMs":       percentile(stats.ResponseTimes, 0.9).Milliseconds(),
			"p99LatencyMs":       percentile(stats.ResponseTimes, 0.99).Milliseconds(),
			"startTime":          stats.StartTime.Format(time.RFC3339),
			"endTime":            stats.EndTime.Format(time.RFC3339),
		},
		"statusCodes": stats.StatusCodes,
		"endpoints":   stats.PerPath,
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
