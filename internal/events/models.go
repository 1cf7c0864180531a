package events

import "time"

// VisitorSession is one row per (visitor, session) pair. Subsequent page
// views of the same session update the row instead of inserting a new one.
type VisitorSession struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	VisitorID string `gorm:"size:64;not null;uniqueIndex:idx_visitor_session,priority:1" json:"visitor_id"`
	SessionID string `gorm:"size:64;not null;uniqueIndex:idx_visitor_session,priority:2" json:"session_id"`
	IPAddress string `gorm:"size:64;index" json:"ip_address"`

	CountryCode  string  `gorm:"size:2;index" json:"country_code"`
	Country      string  `json:"country"`
	Region       string  `json:"region"`
	City         string  `json:"city"`
	PostalCode   string  `json:"postal_code"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Timezone     string  `json:"timezone"`
	ISP          string  `json:"isp"`
	Organization string  `json:"organization"`
	ASN          string  `json:"asn"`
	GeoSource    string  `gorm:"size:16" json:"geo_source"`
	GeoEstimated bool    `gorm:"not null;default:false;index" json:"geo_estimated"`

	UserAgent      string `gorm:"type:text" json:"user_agent"`
	DeviceType     string `gorm:"size:16;index" json:"device_type"`
	Browser        string `json:"browser"`
	OS             string `json:"os"`
	ScreenWidth    int    `json:"screen_width"`
	ScreenHeight   int    `json:"screen_height"`
	ViewportWidth  int    `json:"viewport_width"`
	ViewportHeight int    `json:"viewport_height"`

	PageViews       int        `gorm:"not null;default:0" json:"page_views"`
	SessionDuration int        `gorm:"not null;default:0" json:"session_duration"`
	IsBounce        bool       `gorm:"not null;default:false" json:"is_bounce"`
	FirstVisitAt    time.Time  `gorm:"not null;index" json:"first_visit_at"`
	LastActivityAt  time.Time  `gorm:"not null;index" json:"last_activity_at"`
	FinalizedAt     *time.Time `gorm:"index" json:"-"`
}

func (VisitorSession) TableName() string { return "visitor_sessions" }

// PageViewEvent is the append-only log of page loads.
type PageViewEvent struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID    string `gorm:"size:64;not null;index" json:"session_id"`
	VisitorID    string `gorm:"size:64;not null;index" json:"visitor_id"`
	PagePath     string `gorm:"not null;index" json:"page_path"`
	PageTitle    string `json:"page_title"`
	Referrer     string `gorm:"type:text" json:"referrer"`
	UTMSource    string `json:"utm_source"`
	UTMMedium    string `json:"utm_medium"`
	UTMCampaign  string `json:"utm_campaign"`
	UTMTerm      string `json:"utm_term"`
	UTMContent   string `json:"utm_content"`
	DeviceType   string `json:"device_type"`
	Browser      string `json:"browser"`
	OS           string `json:"os"`
	ScreenWidth  int    `json:"screen_width"`
	ScreenHeight int    `json:"screen_height"`
	IsEntryPage  bool   `gorm:"not null;default:false" json:"is_entry_page"`
	IsExitPage   bool   `gorm:"not null;default:false" json:"is_exit_page"`

	// Snapshots of the session at the time of the event.
	SessionDuration int       `json:"session_duration"`
	PageViewCount   int       `json:"page_view_count"`
	IsBounce        bool      `gorm:"not null;default:false" json:"is_bounce"`
	IPAddress       string    `gorm:"size:64" json:"ip_address"`
	CountryCode     string    `gorm:"size:2" json:"country_code"`
	CreatedAt       time.Time `gorm:"not null;index" json:"created_at"`
}

func (PageViewEvent) TableName() string { return "website_analytics" }

// PerformanceSample carries the web vitals of one page load. Metrics arrive
// separately and are merged into the same row keyed by PageLoadID.
type PerformanceSample struct {
	ID                     uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	PageLoadID             string    `gorm:"size:36;not null;uniqueIndex" json:"page_load_id"`
	SessionID              string    `gorm:"size:64;not null;index" json:"session_id"`
	PagePath               string    `json:"page_path"`
	LoadTime               *float64  `json:"load_time,omitempty"`
	DOMContentLoaded       *float64  `json:"dom_content_loaded,omitempty"`
	FirstContentfulPaint   *float64  `json:"first_contentful_paint,omitempty"`
	LargestContentfulPaint *float64  `json:"largest_contentful_paint,omitempty"`
	CumulativeLayoutShift  *float64  `json:"cumulative_layout_shift,omitempty"`
	FirstInputDelay        *float64  `json:"first_input_delay,omitempty"`
	TotalBlockingTime      *float64  `json:"total_blocking_time,omitempty"`
	CreatedAt              time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt              time.Time `json:"-"`
}

func (PerformanceSample) TableName() string { return "page_performance" }

// FormConversionEvent records a completed or abandoned form interaction.
type FormConversionEvent struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID       string    `gorm:"size:64;not null;index" json:"session_id"`
	VisitorID       string    `gorm:"size:64;index" json:"visitor_id"`
	FormType        string    `gorm:"size:64;not null;index" json:"form_type"`
	PagePath        string    `json:"page_path"`
	Completed       bool      `gorm:"not null;default:false" json:"completed"`
	AbandonedAtStep string    `json:"abandoned_at_step"`
	TimeToConvert   int       `json:"time_to_convert"`
	Funnel          string    `gorm:"type:text" json:"funnel"`
	CreatedAt       time.Time `gorm:"not null;index" json:"created_at"`
}

func (FormConversionEvent) TableName() string { return "form_conversions" }

// Models lists every table owned by this package, in migration order.
func Models() []any {
	return []any{
		&VisitorSession{},
		&PageViewEvent{},
		&PerformanceSample{},
		&FormConversionEvent{},
	}
}
