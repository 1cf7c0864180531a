package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vitrine/internal/config"
)

// BounceThreshold is the session length under which a single page view
// counts as a bounce.
const BounceThreshold = 30 * time.Second

// IsBounce reports whether a session with the given page count and duration
// is a bounce.
func IsBounce(pageViews int, duration time.Duration) bool {
	return pageViews == 1 && duration < BounceThreshold
}

// sessionUpdateColumns are refreshed on every page view of a known session.
// first_visit_at is only ever written by the insert.
var sessionUpdateColumns = []string{
	"ip_address",
	"country_code", "country", "region", "city", "postal_code",
	"latitude", "longitude", "timezone", "isp", "organization", "asn",
	"geo_source", "geo_estimated",
	"user_agent", "device_type", "browser", "os",
	"screen_width", "screen_height", "viewport_width", "viewport_height",
	"page_views", "session_duration", "last_activity_at",
}

var performanceMetricColumns = []string{
	"load_time",
	"dom_content_loaded",
	"first_contentful_paint",
	"largest_contentful_paint",
	"cumulative_layout_shift",
	"first_input_delay",
	"total_blocking_time",
}

// Repository writes collector rows. All writes go through cartridge's
// serialized SQLite writer.
type Repository struct {
	dbManager  cartridge.DBManager
	logger     *slog.Logger
	bounceMode config.BounceMode
}

// NewRepository creates a repository. An empty bounce mode means first_view.
func NewRepository(dbManager cartridge.DBManager, logger *slog.Logger, bounceMode config.BounceMode) *Repository {
	if bounceMode == "" {
		bounceMode = config.BounceFirstView
	}
	return &Repository{
		dbManager:  dbManager,
		logger:     logger,
		bounceMode: bounceMode,
	}
}

// BounceMode returns the bounce semantics applied on session updates.
func (r *Repository) BounceMode() config.BounceMode {
	return r.bounceMode
}

// UpsertSession inserts the session or, when (visitor_id, session_id)
// already exists, updates it in the same statement.
func (r *Repository) UpsertSession(ctx context.Context, session *VisitorSession) error {
	if session.VisitorID == "" || session.SessionID == "" {
		return fmt.Errorf("upsert session: visitor_id and session_id are required")
	}

	now := time.Now().UTC()
	if session.FirstVisitAt.IsZero() {
		session.FirstVisitAt = now
	}
	if session.LastActivityAt.IsZero() {
		session.LastActivityAt = now
	}

	columns := sessionUpdateColumns
	if r.bounceMode == config.BounceSessionEnd {
		// New activity reopens a finalized session for the finalizer.
		session.FinalizedAt = nil
		columns = append(append([]string{}, sessionUpdateColumns...), "is_bounce", "finalized_at")
	}

	db := r.dbManager.GetConnection().WithContext(ctx)
	err := sqlite.PerformWrite(r.logger, db, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "visitor_id"}, {Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).Create(session).Error
	})
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// InsertPageView appends a page view row.
func (r *Repository) InsertPageView(ctx context.Context, view *PageViewEvent) error {
	if view.CreatedAt.IsZero() {
		view.CreatedAt = time.Now().UTC()
	}

	db := r.dbManager.GetConnection().WithContext(ctx)
	err := sqlite.PerformWrite(r.logger, db, func(tx *gorm.DB) error {
		return tx.Create(view).Error
	})
	if err != nil {
		return fmt.Errorf("insert page view: %w", err)
	}
	return nil
}

// UpsertPerformance merges the metrics carried by sample into the row of its
// page load. Metrics that are nil in sample keep their stored value.
func (r *Repository) UpsertPerformance(ctx context.Context, sample *PerformanceSample) error {
	if sample.PageLoadID == "" {
		return fmt.Errorf("upsert performance: page_load_id is required")
	}

	now := time.Now().UTC()
	if sample.CreatedAt.IsZero() {
		sample.CreatedAt = now
	}
	sample.UpdatedAt = now

	table := PerformanceSample{}.TableName()
	assignments := make(clause.Set, 0, len(performanceMetricColumns)+1)
	for _, col := range performanceMetricColumns {
		assignments = append(assignments, clause.Assignment{
			Column: clause.Column{Name: col},
			Value:  gorm.Expr(fmt.Sprintf("COALESCE(excluded.%s, %s.%s)", col, table, col)),
		})
	}
	assignments = append(assignments, clause.Assignment{
		Column: clause.Column{Name: "updated_at"},
		Value:  gorm.Expr("excluded.updated_at"),
	})

	db := r.dbManager.GetConnection().WithContext(ctx)
	err := sqlite.PerformWrite(r.logger, db, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "page_load_id"}},
			DoUpdates: assignments,
		}).Create(sample).Error
	})
	if err != nil {
		return fmt.Errorf("upsert performance: %w", err)
	}
	return nil
}

// InsertFormConversion appends a form conversion row.
func (r *Repository) InsertFormConversion(ctx context.Context, conversion *FormConversionEvent) error {
	if conversion.CreatedAt.IsZero() {
		conversion.CreatedAt = time.Now().UTC()
	}

	db := r.dbManager.GetConnection().WithContext(ctx)
	err := sqlite.PerformWrite(r.logger, db, func(tx *gorm.DB) error {
		return tx.Create(conversion).Error
	})
	if err != nil {
		return fmt.Errorf("insert form conversion: %w", err)
	}
	return nil
}

// FinalizeIdleSessions settles the bounce flag of sessions idle since before
// cutoff and marks them finalized. It processes at most batchSize rows and
// returns how many were finalized.
func (r *Repository) FinalizeIdleSessions(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	db := r.dbManager.GetConnection().WithContext(ctx)
	threshold := int(BounceThreshold / time.Second)
	now := time.Now().UTC()

	var affected int64
	err := sqlite.PerformWrite(r.logger, db, func(tx *gorm.DB) error {
		result := tx.Exec(`
			UPDATE visitor_sessions
			SET is_bounce = (page_views = 1 AND session_duration < ?),
			    finalized_at = ?
			WHERE id IN (
				SELECT id FROM visitor_sessions
				WHERE finalized_at IS NULL AND last_activity_at < ?
				ORDER BY id
				LIMIT ?
			)`, threshold, now, cutoff, batchSize)
		affected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, fmt.Errorf("finalize idle sessions: %w", err)
	}
	return affected, nil
}
