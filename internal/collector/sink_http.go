package collector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"vitrine/internal/events"
)

// Ingestion endpoints, relative to the server base URL.
const (
	SessionsPath    = "/x/api/v1/sessions"
	PageViewsPath   = "/x/api/v1/pageviews"
	PerformancePath = "/x/api/v1/performance"
	ConversionsPath = "/x/api/v1/conversions"
)

// StatusError is returned when the server answers outside 2xx.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("post %s: status %d: %s", e.Path, e.StatusCode, e.Body)
}

// HTTPSink sends rows to a running server's ingestion API.
type HTTPSink struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewHTTPSink creates a sink for baseURL. A zero timeout means 10 seconds.
func NewHTTPSink(baseURL, userAgent string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSink{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSink) UpsertSession(ctx context.Context, session *events.VisitorSession) error {
	return s.post(ctx, SessionsPath, session)
}

func (s *HTTPSink) InsertPageView(ctx context.Context, view *events.PageViewEvent) error {
	return s.post(ctx, PageViewsPath, view)
}

func (s *HTTPSink) UpsertPerformance(ctx context.Context, sample *events.PerformanceSample) error {
	return s.post(ctx, PerformancePath, sample)
}

func (s *HTTPSink) InsertFormConversion(ctx context.Context, conversion *events.FormConversionEvent) error {
	return s.post(ctx, ConversionsPath, conversion)
}

func (s *HTTPSink) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
