package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitrine/internal/events"
	"vitrine/internal/leads"
	"vitrine/internal/timeframe"
)

func float(v float64) *float64 { return &v }

func dayRange(y int, m time.Month, d int) timeframe.Range {
	return timeframe.Range{
		Start: time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		End:   time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), time.UTC),
		Label: timeframe.RangeLabelCustom,
	}
}

func TestComputeEmptyDatasetIsZeroGuarded(t *testing.T) {
	report := Compute(dayRange(2024, 1, 1), Dataset{}, Options{})

	assert.Zero(t, report.Visitors)
	assert.Zero(t, report.Pageviews)
	assert.Zero(t, report.BounceRate)
	assert.Zero(t, report.AvgSessionDuration)
	assert.Zero(t, report.ViewsPerVisit)
	assert.Zero(t, report.LeadMetrics.ConversionRate)
	assert.Zero(t, report.WebVitals.LargestContentfulPaint)
	assert.Empty(t, report.Sources)
	assert.Empty(t, report.Countries)
	assert.NotNil(t, report.Sources)
	assert.Len(t, report.Trend, 24)
}

func TestComputeVisitorsAreDistinctIPs(t *testing.T) {
	data := Dataset{
		Sessions: []events.VisitorSession{
			{VisitorID: "a", IPAddress: "1.1.1.1", SessionDuration: 10, IsBounce: true},
			{VisitorID: "b", IPAddress: "1.1.1.1", SessionDuration: 50},
			{VisitorID: "c", IPAddress: "3.3.3.3", SessionDuration: 30, IsBounce: true},
			{VisitorID: "d", IPAddress: "4.4.4.4", SessionDuration: 30},
		},
		PageViews: make([]events.PageViewEvent, 6),
	}

	report := Compute(dayRange(2024, 1, 1), data, Options{})

	assert.Equal(t, int64(3), report.Visitors)
	assert.Equal(t, int64(6), report.Pageviews)
	assert.Equal(t, 50.0, report.BounceRate)
	assert.Equal(t, 30.0, report.AvgSessionDuration)
	assert.Equal(t, 2.0, report.ViewsPerVisit)
}

func TestComputeSources(t *testing.T) {
	data := Dataset{PageViews: []events.PageViewEvent{
		{UTMSource: "newsletter", Referrer: "https://www.google.com/"},
		{Referrer: "https://www.google.com/search?q=x"},
		{Referrer: "https://www.google.nl/"},
		{Referrer: ""},
		{Referrer: "https://offertevergelijker.nl/kozijnen"},
	}}

	report := Compute(dayRange(2024, 1, 1), data, Options{})

	require.Len(t, report.Sources, 4)
	assert.Equal(t, SourceStat{Source: "Google", Visits: 2, Percentage: 40}, report.Sources[0])
	assert.Equal(t, "Direct", report.Sources[1].Source)
	assert.Equal(t, "Referral", report.Sources[2].Source)
	assert.Equal(t, "newsletter", report.Sources[3].Source)
	assert.Equal(t, 20.0, report.Sources[3].Percentage)
}

func TestComputePages(t *testing.T) {
	data := Dataset{PageViews: []events.PageViewEvent{
		{PagePath: "/kozijnen"}, {PagePath: "/kozijnen"}, {PagePath: "/kozijnen"},
		{PagePath: "/deuren"},
	}}

	report := Compute(dayRange(2024, 1, 1), data, Options{})

	require.Len(t, report.Pages, 2)
	assert.Equal(t, PageStat{Page: "/kozijnen", Views: 3, Percentage: 75}, report.Pages[0])
	assert.Equal(t, PageStat{Page: "/deuren", Views: 1, Percentage: 25}, report.Pages[1])
}

func TestComputeCountries(t *testing.T) {
	t.Run("distinct ip per country", func(t *testing.T) {
		data := Dataset{Sessions: []events.VisitorSession{
			{IPAddress: "1.1.1.1", CountryCode: "NL"},
			{IPAddress: "2.2.2.2", CountryCode: "NL"},
			{IPAddress: "2.2.2.2", CountryCode: "NL"},
			{IPAddress: "5.5.5.5", CountryCode: "be"},
			{IPAddress: "6.6.6.6", CountryCode: "XX"},
		}}

		report := Compute(dayRange(2024, 1, 1), data, Options{})

		require.Len(t, report.Countries, 3)
		assert.Equal(t, CountryStat{Country: "NL", Name: "Netherlands", Flag: "🇳🇱", Visitors: 2}, report.Countries[0])
		assert.Equal(t, "BE", report.Countries[1].Country)
		assert.Equal(t, "Belgium", report.Countries[1].Name)
		assert.Equal(t, "XX", report.Countries[2].Name)
		assert.Equal(t, GlobeFlag, report.Countries[2].Flag)
	})

	t.Run("top ten only", func(t *testing.T) {
		codes := []string{"NL", "BE", "DE", "FR", "LU", "GB", "IE", "ES", "PT", "IT", "AT", "CH"}
		var sessions []events.VisitorSession
		for i, code := range codes {
			sessions = append(sessions, events.VisitorSession{IPAddress: code + "-ip", CountryCode: code})
			if i == 0 {
				sessions = append(sessions, events.VisitorSession{IPAddress: "extra", CountryCode: code})
			}
		}

		report := Compute(dayRange(2024, 1, 1), Dataset{Sessions: sessions}, Options{})

		require.Len(t, report.Countries, MaxCountries)
		assert.Equal(t, "NL", report.Countries[0].Country)
	})

	t.Run("estimated locations can be excluded", func(t *testing.T) {
		data := Dataset{Sessions: []events.VisitorSession{
			{IPAddress: "1.1.1.1", CountryCode: "NL", GeoEstimated: true},
			{IPAddress: "2.2.2.2", CountryCode: "DE"},
		}}

		all := Compute(dayRange(2024, 1, 1), data, Options{})
		filtered := Compute(dayRange(2024, 1, 1), data, Options{ExcludeEstimatedGeo: true})

		assert.Len(t, all.Countries, 2)
		require.Len(t, filtered.Countries, 1)
		assert.Equal(t, "DE", filtered.Countries[0].Country)
		assert.Equal(t, int64(2), filtered.Visitors, "visitor totals keep estimated sessions")
	})
}

func TestComputeDevices(t *testing.T) {
	data := Dataset{Sessions: []events.VisitorSession{
		{IPAddress: "1.1.1.1", DeviceType: "desktop"},
		{IPAddress: "1.1.1.1", DeviceType: "desktop"},
		{IPAddress: "2.2.2.2", DeviceType: "mobile"},
		{IPAddress: "3.3.3.3", DeviceType: ""},
		{IPAddress: "4.4.4.4", DeviceType: "Desktop"},
	}}

	report := Compute(dayRange(2024, 1, 1), data, Options{})

	require.Len(t, report.Devices, 3)
	assert.Equal(t, DeviceStat{Device: "Desktop", Count: 3, Percentage: 75}, report.Devices[0])
	assert.Equal(t, UnknownDevice, report.Devices[1].Device)
	assert.Equal(t, "Mobile", report.Devices[2].Device)
	assert.Equal(t, 25.0, report.Devices[2].Percentage)
}

func TestComputeTrend(t *testing.T) {
	t.Run("one day is hourly", func(t *testing.T) {
		data := Dataset{PageViews: []events.PageViewEvent{
			{VisitorID: "a", CreatedAt: time.Date(2024, 1, 1, 9, 15, 0, 0, time.UTC)},
			{VisitorID: "a", CreatedAt: time.Date(2024, 1, 1, 9, 45, 0, 0, time.UTC)},
			{VisitorID: "b", CreatedAt: time.Date(2024, 1, 1, 9, 50, 0, 0, time.UTC)},
			{VisitorID: "b", CreatedAt: time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)},
		}}

		report := Compute(dayRange(2024, 1, 1), data, Options{})

		require.Len(t, report.Trend, 24)
		assert.Equal(t, timeframe.BucketSizeHour, report.Range.Bucket)
		assert.Equal(t, "0:00", report.Trend[0].Date)
		assert.Equal(t, TrendPoint{Date: "9:00", Visitors: 2, Pageviews: 3}, report.Trend[9])
		assert.Equal(t, TrendPoint{Date: "14:00", Visitors: 1, Pageviews: 1}, report.Trend[14])
	})

	t.Run("rolling day is ordered by hour", func(t *testing.T) {
		end := time.Date(2024, 7, 15, 14, 30, 0, 0, time.UTC)
		r := timeframe.Range{Start: end.Add(-24 * time.Hour), End: end, Label: timeframe.RangeLabelLast24Hours}
		data := Dataset{PageViews: []events.PageViewEvent{
			{VisitorID: "a", CreatedAt: time.Date(2024, 7, 14, 20, 0, 0, 0, time.UTC)},
			{VisitorID: "b", CreatedAt: time.Date(2024, 7, 15, 9, 0, 0, 0, time.UTC)},
		}}

		report := Compute(r, data, Options{})

		require.Len(t, report.Trend, 24)
		assert.Equal(t, "0:00", report.Trend[0].Date)
		assert.Equal(t, TrendPoint{Date: "9:00", Visitors: 1, Pageviews: 1}, report.Trend[9])
		assert.Equal(t, TrendPoint{Date: "20:00", Visitors: 1, Pageviews: 1}, report.Trend[20])
	})

	t.Run("two days are daily", func(t *testing.T) {
		r := timeframe.Range{
			Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 1, 2, 23, 59, 59, 0, time.UTC),
		}
		data := Dataset{PageViews: []events.PageViewEvent{
			{VisitorID: "a", CreatedAt: time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)},
		}}

		report := Compute(r, data, Options{})

		require.Len(t, report.Trend, 2)
		assert.Equal(t, timeframe.BucketSizeDay, report.Range.Bucket)
		assert.Equal(t, TrendPoint{Date: "2024-01-01"}, report.Trend[0])
		assert.Equal(t, TrendPoint{Date: "2024-01-02", Visitors: 1, Pageviews: 1}, report.Trend[1])
	})
}

func TestComputeLeadMetrics(t *testing.T) {
	data := Dataset{
		Sessions: []events.VisitorSession{
			{IPAddress: "1.1.1.1"}, {IPAddress: "2.2.2.2"}, {IPAddress: "3.3.3.3"}, {IPAddress: "4.4.4.4"},
		},
		LeadCounts: []leads.StatusCount{
			{Status: leads.StatusNew, Count: 2},
			{Status: leads.StatusInProgress, Count: 1},
			{Status: leads.StatusQuoteSent, Count: 1},
			{Status: leads.StatusConverted, Count: 1},
			{Status: leads.StatusNoInterest, Count: 1},
			{Status: leads.StatusRejected, Count: 2},
		},
	}

	report := Compute(dayRange(2024, 1, 1), data, Options{})

	assert.Equal(t, LeadMetrics{
		TotalLeads:     8,
		New:            2,
		InProgress:     2,
		Converted:      1,
		NoInterest:     1,
		Rejected:       2,
		ConversionRate: 200,
	}, report.LeadMetrics)
}

func TestComputeFormsAndWebVitals(t *testing.T) {
	data := Dataset{
		Conversions: []events.FormConversionEvent{
			{FormType: "quote", Completed: true, TimeToConvert: 60},
			{FormType: "quote", Completed: true, TimeToConvert: 120},
			{FormType: "quote", Completed: false},
			{FormType: "contact", Completed: false},
		},
		Performance: []events.PerformanceSample{
			{LargestContentfulPaint: float(2000), LoadTime: float(3000)},
			{LargestContentfulPaint: float(1000), CumulativeLayoutShift: float(0.1)},
			{},
		},
	}

	report := Compute(dayRange(2024, 1, 1), data, Options{})

	require.Len(t, report.Forms, 2)
	quote := report.Forms[0]
	assert.Equal(t, "quote", quote.FormType)
	assert.Equal(t, int64(3), quote.Started)
	assert.Equal(t, int64(2), quote.Completed)
	assert.Equal(t, int64(1), quote.Abandoned)
	assert.InDelta(t, 66.67, quote.CompletionRate, 0.01)
	assert.Equal(t, 90.0, quote.AvgTimeToConvert)
	assert.Zero(t, report.Forms[1].AvgTimeToConvert)

	assert.Equal(t, 1500.0, report.WebVitals.LargestContentfulPaint)
	assert.Equal(t, 3000.0, report.WebVitals.LoadTime)
	assert.Equal(t, 0.1, report.WebVitals.CumulativeLayoutShift)
	assert.Zero(t, report.WebVitals.FirstInputDelay)
	assert.Equal(t, int64(3), report.WebVitals.Samples)
}
