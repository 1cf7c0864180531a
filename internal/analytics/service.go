package analytics

import (
	"context"
	"fmt"
	"log/slog"

	"vitrine/internal/events"
	"vitrine/internal/leads"
	"vitrine/internal/pkg/async"
	"vitrine/internal/timeframe"
)

const (
	taskSessions    = "sessions"
	taskPageViews   = "pageviews"
	taskLeads       = "leads"
	taskConversions = "conversions"
	taskPerformance = "performance"
)

// Service loads a range from a Store and computes its report.
type Service struct {
	store  Store
	pool   *async.Pool
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		pool:   async.NewPool(5),
		logger: logger,
	}
}

// Aggregate loads every dataset of r concurrently. Any load error fails the
// whole aggregation; no partial report is returned.
func (s *Service) Aggregate(ctx context.Context, r timeframe.Range, opts Options) (*Report, error) {
	tasks := []async.Task{
		{Name: taskSessions, Execute: func(ctx context.Context) (any, error) { return s.store.Sessions(ctx, r) }},
		{Name: taskPageViews, Execute: func(ctx context.Context) (any, error) { return s.store.PageViews(ctx, r) }},
		{Name: taskLeads, Execute: func(ctx context.Context) (any, error) { return s.store.LeadCounts(ctx, r) }},
		{Name: taskConversions, Execute: func(ctx context.Context) (any, error) { return s.store.Conversions(ctx, r) }},
		{Name: taskPerformance, Execute: func(ctx context.Context) (any, error) { return s.store.Performance(ctx, r) }},
	}

	results := s.pool.Execute(ctx, tasks)
	if err := async.FirstError(results, taskSessions, taskPageViews, taskLeads, taskConversions, taskPerformance); err != nil {
		s.logger.Error("Failed to load analytics data",
			slog.Time("start", r.Start),
			slog.Time("end", r.End),
			slog.Any("error", err))
		return nil, fmt.Errorf("aggregate analytics: %w", err)
	}

	data := Dataset{
		Sessions:    resultOrEmpty[[]events.VisitorSession](results, taskSessions),
		PageViews:   resultOrEmpty[[]events.PageViewEvent](results, taskPageViews),
		LeadCounts:  resultOrEmpty[[]leads.StatusCount](results, taskLeads),
		Conversions: resultOrEmpty[[]events.FormConversionEvent](results, taskConversions),
		Performance: resultOrEmpty[[]events.PerformanceSample](results, taskPerformance),
	}

	report := Compute(r, data, opts)
	s.logger.Debug("Analytics aggregated",
		slog.String("label", string(r.Label)),
		slog.Int64("visitors", report.Visitors),
		slog.Int64("pageviews", report.Pageviews))
	return report, nil
}

func resultOrEmpty[T any](results map[string]async.Result, name string) T {
	var zero T
	if result, exists := results[name]; exists && result.Data != nil {
		if v, ok := result.Data.(T); ok {
			return v
		}
	}
	return zero
}
