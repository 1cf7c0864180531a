// Package analytics computes the dashboard report from raw collector rows.
//
// The package is organized into:
//   - report.go: report types returned to the dashboard
//   - compute.go: pure derivation of a Report from loaded rows
//   - countries.go: country names and flag glyphs
//   - store.go: Store interface and its gorm implementation
//   - service.go: concurrent loading and aggregation
package analytics

import (
	"time"

	"vitrine/internal/timeframe"
)

// Report is the aggregate the admin dashboard renders. It is never persisted.
type Report struct {
	Visitors           int64         `json:"visitors"`
	Pageviews          int64         `json:"pageviews"`
	BounceRate         float64       `json:"bounceRate"`
	AvgSessionDuration float64       `json:"avgSessionDuration"`
	ViewsPerVisit      float64       `json:"viewsPerVisit"`
	Sources            []SourceStat  `json:"sources"`
	Pages              []PageStat    `json:"pages"`
	Countries          []CountryStat `json:"countries"`
	Devices            []DeviceStat  `json:"devices"`
	Trend              []TrendPoint  `json:"trend"`
	LeadMetrics        LeadMetrics   `json:"leadMetrics"`
	Forms              []FormStat    `json:"forms"`
	WebVitals          WebVitals     `json:"webVitals"`
	Range              RangeInfo     `json:"range"`
}

type SourceStat struct {
	Source     string  `json:"source"`
	Visits     int64   `json:"visits"`
	Percentage float64 `json:"percentage"`
}

type PageStat struct {
	Page       string  `json:"page"`
	Views      int64   `json:"views"`
	Percentage float64 `json:"percentage"`
}

type CountryStat struct {
	Country  string `json:"country"`
	Name     string `json:"name"`
	Flag     string `json:"flag"`
	Visitors int64  `json:"visitors"`
}

type DeviceStat struct {
	Device     string  `json:"device"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// TrendPoint is one hour-of-day or calendar-day bucket.
type TrendPoint struct {
	Date      string `json:"date"`
	Visitors  int64  `json:"visitors"`
	Pageviews int64  `json:"pageviews"`
}

type LeadMetrics struct {
	TotalLeads     int64   `json:"totalLeads"`
	New            int64   `json:"new"`
	InProgress     int64   `json:"inProgress"`
	Converted      int64   `json:"converted"`
	NoInterest     int64   `json:"noInterest"`
	Rejected       int64   `json:"rejected"`
	ConversionRate float64 `json:"conversionRate"`
}

// FormStat summarizes the conversions of one form type.
type FormStat struct {
	FormType         string  `json:"formType"`
	Started          int64   `json:"started"`
	Completed        int64   `json:"completed"`
	Abandoned        int64   `json:"abandoned"`
	CompletionRate   float64 `json:"completionRate"`
	AvgTimeToConvert float64 `json:"avgTimeToConvert"`
}

// WebVitals holds metric averages over the samples that carry them.
type WebVitals struct {
	LargestContentfulPaint float64 `json:"lcp"`
	FirstInputDelay        float64 `json:"fid"`
	CumulativeLayoutShift  float64 `json:"cls"`
	LoadTime               float64 `json:"loadTime"`
	FirstContentfulPaint   float64 `json:"fcp"`
	Samples                int64   `json:"samples"`
}

type RangeInfo struct {
	Start  time.Time            `json:"start"`
	End    time.Time            `json:"end"`
	Label  timeframe.RangeLabel `json:"label"`
	Bucket timeframe.BucketSize `json:"bucket"`
}

// Options tune a single aggregation.
type Options struct {
	// ExcludeEstimatedGeo leaves default-located sessions out of the
	// countries block.
	ExcludeEstimatedGeo bool
}
