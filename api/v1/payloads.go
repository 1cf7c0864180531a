package v1

import (
	"time"

	"vitrine/internal/events"
)

// SessionPayload is the body of POST /x/api/v1/sessions.
type SessionPayload struct {
	VisitorID string `json:"visitor_id" validate:"required,max=64"`
	SessionID string `json:"session_id" validate:"required,max=64"`
	IPAddress string `json:"ip_address" validate:"omitempty,ip"`

	CountryCode  string  `json:"country_code" validate:"omitempty,len=2,alpha"`
	Country      string  `json:"country" validate:"max=128"`
	Region       string  `json:"region" validate:"max=128"`
	City         string  `json:"city" validate:"max=128"`
	PostalCode   string  `json:"postal_code" validate:"max=16"`
	Latitude     float64 `json:"latitude" validate:"latitude"`
	Longitude    float64 `json:"longitude" validate:"longitude"`
	Timezone     string  `json:"timezone" validate:"max=64"`
	ISP          string  `json:"isp" validate:"max=256"`
	Organization string  `json:"organization" validate:"max=256"`
	ASN          string  `json:"asn" validate:"max=32"`
	GeoSource    string  `json:"geo_source" validate:"max=16"`
	GeoEstimated bool    `json:"geo_estimated"`

	UserAgent      string `json:"user_agent" validate:"max=1024"`
	DeviceType     string `json:"device_type" validate:"omitempty,oneof=desktop mobile tablet"`
	Browser        string `json:"browser" validate:"max=64"`
	OS             string `json:"os" validate:"max=64"`
	ScreenWidth    int    `json:"screen_width" validate:"gte=0"`
	ScreenHeight   int    `json:"screen_height" validate:"gte=0"`
	ViewportWidth  int    `json:"viewport_width" validate:"gte=0"`
	ViewportHeight int    `json:"viewport_height" validate:"gte=0"`

	PageViews       int       `json:"page_views" validate:"gte=1"`
	SessionDuration int       `json:"session_duration" validate:"gte=0"`
	IsBounce        bool      `json:"is_bounce"`
	FirstVisitAt    time.Time `json:"first_visit_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
}

func (p *SessionPayload) model() *events.VisitorSession {
	return &events.VisitorSession{
		VisitorID:       p.VisitorID,
		SessionID:       p.SessionID,
		IPAddress:       p.IPAddress,
		CountryCode:     p.CountryCode,
		Country:         p.Country,
		Region:          p.Region,
		City:            p.City,
		PostalCode:      p.PostalCode,
		Latitude:        p.Latitude,
		Longitude:       p.Longitude,
		Timezone:        p.Timezone,
		ISP:             p.ISP,
		Organization:    p.Organization,
		ASN:             p.ASN,
		GeoSource:       p.GeoSource,
		GeoEstimated:    p.GeoEstimated,
		UserAgent:       p.UserAgent,
		DeviceType:      p.DeviceType,
		Browser:         p.Browser,
		OS:              p.OS,
		ScreenWidth:     p.ScreenWidth,
		ScreenHeight:    p.ScreenHeight,
		ViewportWidth:   p.ViewportWidth,
		ViewportHeight:  p.ViewportHeight,
		PageViews:       p.PageViews,
		SessionDuration: p.SessionDuration,
		IsBounce:        p.IsBounce,
		FirstVisitAt:    p.FirstVisitAt.UTC(),
		LastActivityAt:  p.LastActivityAt.UTC(),
	}
}

// PageViewPayload is the body of POST /x/api/v1/pageviews.
type PageViewPayload struct {
	SessionID       string    `json:"session_id" validate:"required,max=64"`
	VisitorID       string    `json:"visitor_id" validate:"required,max=64"`
	PagePath        string    `json:"page_path" validate:"required,startswith=/,max=2048"`
	PageTitle       string    `json:"page_title" validate:"max=512"`
	Referrer        string    `json:"referrer" validate:"max=2048"`
	UTMSource       string    `json:"utm_source" validate:"max=256"`
	UTMMedium       string    `json:"utm_medium" validate:"max=256"`
	UTMCampaign     string    `json:"utm_campaign" validate:"max=256"`
	UTMTerm         string    `json:"utm_term" validate:"max=256"`
	UTMContent      string    `json:"utm_content" validate:"max=256"`
	DeviceType      string    `json:"device_type" validate:"omitempty,oneof=desktop mobile tablet"`
	Browser         string    `json:"browser" validate:"max=64"`
	OS              string    `json:"os" validate:"max=64"`
	ScreenWidth     int       `json:"screen_width" validate:"gte=0"`
	ScreenHeight    int       `json:"screen_height" validate:"gte=0"`
	IsEntryPage     bool      `json:"is_entry_page"`
	IsExitPage      bool      `json:"is_exit_page"`
	SessionDuration int       `json:"session_duration" validate:"gte=0"`
	PageViewCount   int       `json:"page_view_count" validate:"gte=0"`
	IsBounce        bool      `json:"is_bounce"`
	IPAddress       string    `json:"ip_address" validate:"omitempty,ip"`
	CountryCode     string    `json:"country_code" validate:"omitempty,len=2,alpha"`
	CreatedAt       time.Time `json:"created_at"`
}

func (p *PageViewPayload) model() *events.PageViewEvent {
	return &events.PageViewEvent{
		SessionID:       p.SessionID,
		VisitorID:       p.VisitorID,
		PagePath:        p.PagePath,
		PageTitle:       p.PageTitle,
		Referrer:        p.Referrer,
		UTMSource:       p.UTMSource,
		UTMMedium:       p.UTMMedium,
		UTMCampaign:     p.UTMCampaign,
		UTMTerm:         p.UTMTerm,
		UTMContent:      p.UTMContent,
		DeviceType:      p.DeviceType,
		Browser:         p.Browser,
		OS:              p.OS,
		ScreenWidth:     p.ScreenWidth,
		ScreenHeight:    p.ScreenHeight,
		IsEntryPage:     p.IsEntryPage,
		IsExitPage:      p.IsExitPage,
		SessionDuration: p.SessionDuration,
		PageViewCount:   p.PageViewCount,
		IsBounce:        p.IsBounce,
		IPAddress:       p.IPAddress,
		CountryCode:     p.CountryCode,
		CreatedAt:       p.CreatedAt.UTC(),
	}
}

// PerformancePayload is the body of POST /x/api/v1/performance. Absent
// metrics keep their stored value.
type PerformancePayload struct {
	PageLoadID             string   `json:"page_load_id" validate:"required,uuid"`
	SessionID              string   `json:"session_id" validate:"required,max=64"`
	PagePath               string   `json:"page_path" validate:"max=2048"`
	LoadTime               *float64 `json:"load_time" validate:"omitnil,gte=0"`
	DOMContentLoaded       *float64 `json:"dom_content_loaded" validate:"omitnil,gte=0"`
	FirstContentfulPaint   *float64 `json:"first_contentful_paint" validate:"omitnil,gte=0"`
	LargestContentfulPaint *float64 `json:"largest_contentful_paint" validate:"omitnil,gte=0"`
	CumulativeLayoutShift  *float64 `json:"cumulative_layout_shift" validate:"omitnil,gte=0"`
	FirstInputDelay        *float64 `json:"first_input_delay" validate:"omitnil,gte=0"`
	TotalBlockingTime      *float64 `json:"total_blocking_time" validate:"omitnil,gte=0"`
}

func (p *PerformancePayload) model() *events.PerformanceSample {
	return &events.PerformanceSample{
		PageLoadID:             p.PageLoadID,
		SessionID:              p.SessionID,
		PagePath:               p.PagePath,
		LoadTime:               p.LoadTime,
		DOMContentLoaded:       p.DOMContentLoaded,
		FirstContentfulPaint:   p.FirstContentfulPaint,
		LargestContentfulPaint: p.LargestContentfulPaint,
		CumulativeLayoutShift:  p.CumulativeLayoutShift,
		FirstInputDelay:        p.FirstInputDelay,
		TotalBlockingTime:      p.TotalBlockingTime,
	}
}

// ConversionPayload is the body of POST /x/api/v1/conversions.
type ConversionPayload struct {
	SessionID       string    `json:"session_id" validate:"required,max=64"`
	VisitorID       string    `json:"visitor_id" validate:"max=64"`
	FormType        string    `json:"form_type" validate:"required,max=64"`
	PagePath        string    `json:"page_path" validate:"max=2048"`
	Completed       bool      `json:"completed"`
	AbandonedAtStep string    `json:"abandoned_at_step" validate:"max=64"`
	TimeToConvert   int       `json:"time_to_convert" validate:"gte=0"`
	Funnel          string    `json:"funnel" validate:"omitempty,json"`
	CreatedAt       time.Time `json:"created_at"`
}

func (p *ConversionPayload) model() *events.FormConversionEvent {
	return &events.FormConversionEvent{
		SessionID:       p.SessionID,
		VisitorID:       p.VisitorID,
		FormType:        p.FormType,
		PagePath:        p.PagePath,
		Completed:       p.Completed,
		AbandonedAtStep: p.AbandonedAtStep,
		TimeToConvert:   p.TimeToConvert,
		Funnel:          p.Funnel,
		CreatedAt:       p.CreatedAt.UTC(),
	}
}
