// Package leads exposes the quote and contact requests submitted through the
// site. Leads are written by the site's form endpoints; this package only
// reads them.
package leads

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Status values as stored by the lead forms.
const (
	StatusNew        = "nieuw"
	StatusInProgress = "in_behandeling"
	StatusContacted  = "gecontacteerd"
	StatusQuoteSent  = "offerte_verstuurd"
	StatusConverted  = "geconverteerd"
	StatusNoInterest = "geen_interesse"
	StatusRejected   = "afgewezen"
)

// InProgressStatuses are the statuses of leads being worked on.
var InProgressStatuses = []string{StatusInProgress, StatusContacted, StatusQuoteSent}

// IsInProgress reports whether status is one of InProgressStatuses.
func IsInProgress(status string) bool {
	for _, s := range InProgressStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Lead is a submitted quote or contact request.
type Lead struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Name      string    `gorm:"not null"`
	Email     string    `gorm:"index"`
	Phone     string
	Product   string
	Message   string    `gorm:"type:text"`
	Status    string    `gorm:"size:32;not null;default:nieuw;index"`
	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time
}

func (Lead) TableName() string { return "leads" }

// StatusCount is the number of leads with one status.
type StatusCount struct {
	Status string
	Count  int64
}

// CountByStatus returns lead counts per status for leads created in [start, end].
func CountByStatus(ctx context.Context, db *gorm.DB, start, end time.Time) ([]StatusCount, error) {
	var counts []StatusCount
	err := db.WithContext(ctx).
		Model(&Lead{}).
		Select("status, COUNT(*) AS count").
		Where("created_at BETWEEN ? AND ?", start.UTC(), end.UTC()).
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("count leads by status: %w", err)
	}
	return counts, nil
}
