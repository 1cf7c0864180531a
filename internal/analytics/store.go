package analytics

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"vitrine/internal/events"
	"vitrine/internal/leads"
	"vitrine/internal/timeframe"
)

// Store loads the raw rows of a range.
type Store interface {
	Sessions(ctx context.Context, r timeframe.Range) ([]events.VisitorSession, error)
	PageViews(ctx context.Context, r timeframe.Range) ([]events.PageViewEvent, error)
	LeadCounts(ctx context.Context, r timeframe.Range) ([]leads.StatusCount, error)
	Conversions(ctx context.Context, r timeframe.Range) ([]events.FormConversionEvent, error)
	Performance(ctx context.Context, r timeframe.Range) ([]events.PerformanceSample, error)
}

// GormStore reads from the application database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Sessions returns sessions whose first visit falls in r.
func (s *GormStore) Sessions(ctx context.Context, r timeframe.Range) ([]events.VisitorSession, error) {
	var sessions []events.VisitorSession
	err := s.db.WithContext(ctx).
		Select("visitor_id", "session_id", "ip_address", "country_code", "geo_estimated",
			"device_type", "page_views", "session_duration", "is_bounce", "first_visit_at").
		Where("first_visit_at BETWEEN ? AND ?", r.Start.UTC(), r.End.UTC()).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("error loading sessions: %w", err)
	}
	return sessions, nil
}

// PageViews returns page views created in r.
func (s *GormStore) PageViews(ctx context.Context, r timeframe.Range) ([]events.PageViewEvent, error) {
	var views []events.PageViewEvent
	err := s.db.WithContext(ctx).
		Select("visitor_id", "session_id", "page_path", "referrer", "utm_source", "created_at").
		Where("created_at BETWEEN ? AND ?", r.Start.UTC(), r.End.UTC()).
		Find(&views).Error
	if err != nil {
		return nil, fmt.Errorf("error loading page views: %w", err)
	}
	return views, nil
}

// LeadCounts returns lead counts per status for leads created in r.
func (s *GormStore) LeadCounts(ctx context.Context, r timeframe.Range) ([]leads.StatusCount, error) {
	return leads.CountByStatus(ctx, s.db, r.Start, r.End)
}

// Conversions returns form conversions created in r.
func (s *GormStore) Conversions(ctx context.Context, r timeframe.Range) ([]events.FormConversionEvent, error) {
	var conversions []events.FormConversionEvent
	err := s.db.WithContext(ctx).
		Select("form_type", "completed", "time_to_convert", "created_at").
		Where("created_at BETWEEN ? AND ?", r.Start.UTC(), r.End.UTC()).
		Find(&conversions).Error
	if err != nil {
		return nil, fmt.Errorf("error loading form conversions: %w", err)
	}
	return conversions, nil
}

// Performance returns performance samples created in r.
func (s *GormStore) Performance(ctx context.Context, r timeframe.Range) ([]events.PerformanceSample, error) {
	var samples []events.PerformanceSample
	err := s.db.WithContext(ctx).
		Where("created_at BETWEEN ? AND ?", r.Start.UTC(), r.End.UTC()).
		Find(&samples).Error
	if err != nil {
		return nil, fmt.Errorf("error loading performance samples: %w", err)
	}
	return samples, nil
}
