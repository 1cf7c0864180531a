// Package collector records visitor sessions, page views, performance
// samples and form conversions on behalf of one page session.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"vitrine/internal/events"
	"vitrine/internal/pkg/device"
	"vitrine/internal/pkg/geolocation"
)

// Storage keys.
const (
	KeyVisitorID        = "vitrine_visitor_id"
	KeySessionID        = "vitrine_session_id"
	KeySessionPageViews = "vitrine_session_page_views"
	KeySessionStart     = "vitrine_session_start"
)

// Sink receives the rows the tracker produces.
type Sink interface {
	UpsertSession(ctx context.Context, session *events.VisitorSession) error
	InsertPageView(ctx context.Context, view *events.PageViewEvent) error
	UpsertPerformance(ctx context.Context, sample *events.PerformanceSample) error
	InsertFormConversion(ctx context.Context, conversion *events.FormConversionEvent) error
}

// Locator resolves an IP address. It must not fail.
type Locator interface {
	Lookup(ctx context.Context, ip string) geolocation.Location
}

// Classifier derives the device of a user agent.
type Classifier interface {
	Classify(userAgent string, screen device.Screen) device.Info
}

// Environment is what the current page exposes to the tracker.
type Environment struct {
	URL       string
	Title     string
	Referrer  string
	UserAgent string
	// IP may be empty; the ingestion API then fills in the request address.
	IP     string
	Screen device.Screen
}

// Options configure a Tracker. Storage and Sink are required.
type Options struct {
	Storage     Storage
	Sink        Sink
	Locator     Locator
	Classifier  Classifier
	Logger      *slog.Logger
	Clock       func() time.Time
	Environment Environment
}

// Metric names an observed web vital.
type Metric string

const (
	MetricLCP Metric = "lcp"
	MetricFID Metric = "fid"
	MetricCLS Metric = "cls"
)

// NavigationTiming is the page-load reading taken after the window load
// event. Zero values are not recorded.
type NavigationTiming struct {
	LoadTime             float64
	DOMContentLoaded     float64
	FirstContentfulPaint float64
}

// FormConversion describes one form interaction.
type FormConversion struct {
	FormType        string
	Completed       bool
	AbandonedAtStep string
	StartedAt       time.Time
	Funnel          map[string]any
}

// Tracker is the collector of one page session. Write failures are logged
// and never returned.
type Tracker struct {
	storage    Storage
	sink       Sink
	locator    Locator
	classifier Classifier
	logger     *slog.Logger
	clock      func() time.Time

	mu         sync.Mutex
	env        Environment
	visitorID  string
	sessionID  string
	pageLoadID string

	closeMu sync.RWMutex
	exits   sync.WaitGroup
	closed  atomic.Bool
}

// New loads or creates the visitor and session identifiers.
func New(opts Options) (*Tracker, error) {
	if opts.Storage == nil || opts.Sink == nil {
		return nil, errors.New("collector: storage and sink are required")
	}

	t := &Tracker{
		storage:    opts.Storage,
		sink:       opts.Sink,
		locator:    opts.Locator,
		classifier: opts.Classifier,
		logger:     opts.Logger,
		clock:      opts.Clock,
		env:        opts.Environment,
	}
	if t.locator == nil {
		t.locator = geolocation.NewChain(geolocation.ChainOptions{Logger: opts.Logger})
	}
	if t.classifier == nil {
		t.classifier = device.Default()
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.clock == nil {
		t.clock = time.Now
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureIdentity(); err != nil {
		return nil, err
	}
	return t, nil
}

// ensureIdentity must be called with mu held.
func (t *Tracker) ensureIdentity() error {
	now := t.clock()

	visitorID, ok := t.storage.Get(Persistent, KeyVisitorID)
	if !ok || visitorID == "" {
		visitorID = newID(now)
		if err := t.storage.Set(Persistent, KeyVisitorID, visitorID); err != nil {
			return err
		}
	}
	t.visitorID = visitorID

	sessionID, ok := t.storage.Get(Session, KeySessionID)
	if !ok || sessionID == "" {
		sessionID = newID(now)
		for key, value := range map[string]string{
			KeySessionID:        sessionID,
			KeySessionPageViews: "0",
			KeySessionStart:     now.UTC().Format(time.RFC3339Nano),
		} {
			if err := t.storage.Set(Session, key, value); err != nil {
				return err
			}
		}
	}
	t.sessionID = sessionID
	return nil
}

// VisitorID returns the persistent visitor identifier.
func (t *Tracker) VisitorID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visitorID
}

// SessionID returns the current session identifier.
func (t *Tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// Navigate replaces the page environment, for client-side navigations. The
// next page view or metric belongs to a new page load.
func (t *Tracker) Navigate(env Environment) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.env = env
	t.pageLoadID = ""
}

type pageViewState struct {
	env        Environment
	visitorID  string
	sessionID  string
	count      int
	start      time.Time
	pageLoadID string
}

func (t *Tracker) nextPageView(isEntryPage bool) (pageViewState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// A cleared session store starts a new session.
	if err := t.ensureIdentity(); err != nil {
		return pageViewState{}, err
	}

	count := 0
	if v, ok := t.storage.Get(Session, KeySessionPageViews); ok {
		count, _ = strconv.Atoi(v)
	}
	count++
	if err := t.storage.Set(Session, KeySessionPageViews, strconv.Itoa(count)); err != nil {
		return pageViewState{}, err
	}

	start := t.clock()
	if v, ok := t.storage.Get(Session, KeySessionStart); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, v); err == nil {
			start = parsed
		}
	}

	if isEntryPage || t.pageLoadID == "" {
		t.pageLoadID = uuid.NewString()
	}

	return pageViewState{
		env:        t.env,
		visitorID:  t.visitorID,
		sessionID:  t.sessionID,
		count:      count,
		start:      start,
		pageLoadID: t.pageLoadID,
	}, nil
}

// TrackPageView records a page view: it upserts the session row and then
// appends the page view row.
func (t *Tracker) TrackPageView(ctx context.Context, isEntryPage bool) {
	t.trackPageView(ctx, isEntryPage, false)
}

func (t *Tracker) trackPageView(ctx context.Context, isEntryPage, isExitPage bool) {
	if t.closed.Load() {
		return
	}
	t.recordPageView(ctx, isEntryPage, isExitPage)
}

func (t *Tracker) recordPageView(ctx context.Context, isEntryPage, isExitPage bool) {
	state, err := t.nextPageView(isEntryPage)
	if err != nil {
		t.logger.Warn("Failed to update client storage", slog.String("operation", "track_page_view"), slog.Any("error", err))
		return
	}

	info := t.classifier.Classify(state.env.UserAgent, state.env.Screen)
	utm := ExtractUTM(state.env.URL)
	loc := t.locator.Lookup(ctx, state.env.IP)

	now := t.clock()
	elapsed := now.Sub(state.start)
	if elapsed < 0 {
		elapsed = 0
	}
	duration := int(elapsed / time.Second)
	bounce := events.IsBounce(state.count, elapsed)

	session := &events.VisitorSession{
		VisitorID:       state.visitorID,
		SessionID:       state.sessionID,
		IPAddress:       state.env.IP,
		CountryCode:     loc.CountryCode,
		Country:         loc.Country,
		Region:          loc.Region,
		City:            loc.City,
		PostalCode:      loc.PostalCode,
		Latitude:        loc.Latitude,
		Longitude:       loc.Longitude,
		Timezone:        loc.Timezone,
		ISP:             loc.ISP,
		Organization:    loc.Organization,
		ASN:             loc.ASN,
		GeoSource:       loc.Source,
		GeoEstimated:    loc.Estimated,
		UserAgent:       state.env.UserAgent,
		DeviceType:      info.Type,
		Browser:         info.Browser,
		OS:              info.OS,
		ScreenWidth:     info.ScreenWidth,
		ScreenHeight:    info.ScreenHeight,
		ViewportWidth:   info.ViewportWidth,
		ViewportHeight:  info.ViewportHeight,
		PageViews:       state.count,
		SessionDuration: duration,
		IsBounce:        bounce,
		FirstVisitAt:    now.UTC(),
		LastActivityAt:  now.UTC(),
	}
	if err := t.sink.UpsertSession(ctx, session); err != nil {
		t.logger.Warn("Failed to record visitor session",
			slog.String("operation", "upsert_session"),
			slog.String("session_id", state.sessionID),
			slog.Any("error", err))
	}

	view := &events.PageViewEvent{
		SessionID:       state.sessionID,
		VisitorID:       state.visitorID,
		PagePath:        pagePath(state.env.URL),
		PageTitle:       state.env.Title,
		Referrer:        state.env.Referrer,
		UTMSource:       utm.Source,
		UTMMedium:       utm.Medium,
		UTMCampaign:     utm.Campaign,
		UTMTerm:         utm.Term,
		UTMContent:      utm.Content,
		DeviceType:      info.Type,
		Browser:         info.Browser,
		OS:              info.OS,
		ScreenWidth:     info.ScreenWidth,
		ScreenHeight:    info.ScreenHeight,
		IsEntryPage:     isEntryPage,
		IsExitPage:      isExitPage,
		SessionDuration: duration,
		PageViewCount:   state.count,
		IsBounce:        bounce,
		IPAddress:       state.env.IP,
		CountryCode:     loc.CountryCode,
		CreatedAt:       now.UTC(),
	}
	if err := t.sink.InsertPageView(ctx, view); err != nil {
		t.logger.Warn("Failed to record page view",
			slog.String("operation", "insert_page_view"),
			slog.String("session_id", state.sessionID),
			slog.Any("error", err))
	}
}

// TrackExit snapshots the session once more as the page is left. It returns
// immediately; Close waits for the write.
func (t *Tracker) TrackExit(ctx context.Context) {
	t.closeMu.RLock()
	defer t.closeMu.RUnlock()
	if t.closed.Load() {
		return
	}

	t.exits.Add(1)
	go func() {
		defer t.exits.Done()
		t.recordPageView(context.WithoutCancel(ctx), false, true)
	}()
}

func (t *Tracker) performanceBase() (*events.PerformanceSample, bool) {
	if t.closed.Load() {
		return nil, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pageLoadID == "" {
		t.pageLoadID = uuid.NewString()
	}
	return &events.PerformanceSample{
		PageLoadID: t.pageLoadID,
		SessionID:  t.sessionID,
		PagePath:   pagePath(t.env.URL),
		CreatedAt:  t.clock().UTC(),
	}, true
}

// RecordMetric merges one observed web vital into the current page load.
func (t *Tracker) RecordMetric(ctx context.Context, metric Metric, value float64) {
	sample, ok := t.performanceBase()
	if !ok {
		return
	}

	switch metric {
	case MetricLCP:
		sample.LargestContentfulPaint = &value
	case MetricFID:
		sample.FirstInputDelay = &value
	case MetricCLS:
		sample.CumulativeLayoutShift = &value
	default:
		t.logger.Debug("Ignoring unknown performance metric", slog.String("metric", string(metric)))
		return
	}
	t.writePerformance(ctx, sample)
}

// RecordNavigationTiming merges the load timing into the current page load.
func (t *Tracker) RecordNavigationTiming(ctx context.Context, timing NavigationTiming) {
	sample, ok := t.performanceBase()
	if !ok {
		return
	}
	sample.LoadTime = positive(timing.LoadTime)
	sample.DOMContentLoaded = positive(timing.DOMContentLoaded)
	sample.FirstContentfulPaint = positive(timing.FirstContentfulPaint)
	if sample.LoadTime == nil && sample.DOMContentLoaded == nil && sample.FirstContentfulPaint == nil {
		return
	}
	t.writePerformance(ctx, sample)
}

func (t *Tracker) writePerformance(ctx context.Context, sample *events.PerformanceSample) {
	if err := t.sink.UpsertPerformance(ctx, sample); err != nil {
		t.logger.Warn("Failed to record performance sample",
			slog.String("operation", "upsert_performance"),
			slog.String("page_load_id", sample.PageLoadID),
			slog.Any("error", err))
	}
}

func positive(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return &v
}

// TrackFormConversion records a form interaction of the current session.
func (t *Tracker) TrackFormConversion(ctx context.Context, fc FormConversion) {
	if t.closed.Load() {
		return
	}

	t.mu.Lock()
	sessionID, visitorID, path := t.sessionID, t.visitorID, pagePath(t.env.URL)
	t.mu.Unlock()

	now := t.clock()
	timeToConvert := 0
	if !fc.StartedAt.IsZero() && now.After(fc.StartedAt) {
		timeToConvert = int(now.Sub(fc.StartedAt) / time.Second)
	}

	funnel := ""
	if len(fc.Funnel) > 0 {
		data, err := json.Marshal(fc.Funnel)
		if err != nil {
			t.logger.Debug("Dropping unencodable funnel", slog.Any("error", err))
		} else {
			funnel = string(data)
		}
	}

	conversion := &events.FormConversionEvent{
		SessionID:       sessionID,
		VisitorID:       visitorID,
		FormType:        fc.FormType,
		PagePath:        path,
		Completed:       fc.Completed,
		AbandonedAtStep: fc.AbandonedAtStep,
		TimeToConvert:   timeToConvert,
		Funnel:          funnel,
		CreatedAt:       now.UTC(),
	}
	if err := t.sink.InsertFormConversion(ctx, conversion); err != nil {
		t.logger.Warn("Failed to record form conversion",
			slog.String("operation", "insert_form_conversion"),
			slog.String("form_type", fc.FormType),
			slog.Any("error", err))
	}
}

// Close waits for pending exit snapshots. Later calls on the tracker are
// no-ops.
func (t *Tracker) Close() {
	t.closeMu.Lock()
	t.closed.Store(true)
	t.closeMu.Unlock()

	t.exits.Wait()
}
