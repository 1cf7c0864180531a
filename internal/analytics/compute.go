package analytics

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"vitrine/internal/events"
	"vitrine/internal/leads"
	"vitrine/internal/pkg/referrers"
	"vitrine/internal/timeframe"
)

// MaxCountries bounds the countries block.
const MaxCountries = 10

// UnknownDevice labels sessions without a device type.
const UnknownDevice = "Unknown"

// Dataset holds the rows of one range as loaded from a Store.
type Dataset struct {
	Sessions    []events.VisitorSession
	PageViews   []events.PageViewEvent
	LeadCounts  []leads.StatusCount
	Conversions []events.FormConversionEvent
	Performance []events.PerformanceSample
}

// Compute derives the report of r from d. It performs no I/O.
func Compute(r timeframe.Range, d Dataset, opts Options) *Report {
	visitors := int64(len(distinctIPs(d.Sessions)))
	pageviews := int64(len(d.PageViews))
	sessions := int64(len(d.Sessions))

	var bounced, totalDuration int64
	for _, s := range d.Sessions {
		if s.IsBounce {
			bounced++
		}
		totalDuration += int64(s.SessionDuration)
	}

	report := &Report{
		Visitors:           visitors,
		Pageviews:          pageviews,
		BounceRate:         percentage(bounced, sessions),
		AvgSessionDuration: ratio(totalDuration, sessions),
		ViewsPerVisit:      ratio(pageviews, visitors),
		Sources:            sourceStats(d.PageViews),
		Pages:              pageStats(d.PageViews),
		Countries:          countryStats(d.Sessions, opts),
		Devices:            deviceStats(d.Sessions, visitors),
		Trend:              trend(r, d.PageViews),
		LeadMetrics:        leadMetrics(d.LeadCounts, visitors),
		Forms:              formStats(d.Conversions),
		WebVitals:          webVitals(d.Performance),
		Range: RangeInfo{
			Start:  r.Start,
			End:    r.End,
			Label:  r.Label,
			Bucket: r.Bucket(),
		},
	}
	return report
}

// ratio is a/b, or 0 when b is 0.
func ratio(a, b int64) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// percentage is part/whole*100, or 0 when whole is 0.
func percentage(part, whole int64) float64 {
	return ratio(part, whole) * 100
}

func distinctIPs(sessions []events.VisitorSession) map[string]struct{} {
	ips := make(map[string]struct{}, len(sessions))
	for _, s := range sessions {
		ips[s.IPAddress] = struct{}{}
	}
	return ips
}

type keyCount struct {
	key   string
	count int64
}

// rank orders counts descending, ties by key ascending.
func rank(counts map[string]int64) []keyCount {
	ranked := make([]keyCount, 0, len(counts))
	for k, n := range counts {
		ranked = append(ranked, keyCount{key: k, count: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].key < ranked[j].key
	})
	return ranked
}

func sourceStats(views []events.PageViewEvent) []SourceStat {
	counts := make(map[string]int64)
	for _, v := range views {
		counts[referrers.Classify(v.UTMSource, v.Referrer)]++
	}

	total := int64(len(views))
	result := make([]SourceStat, 0, len(counts))
	for _, kc := range rank(counts) {
		result = append(result, SourceStat{
			Source:     kc.key,
			Visits:     kc.count,
			Percentage: percentage(kc.count, total),
		})
	}
	return result
}

func pageStats(views []events.PageViewEvent) []PageStat {
	counts := make(map[string]int64)
	for _, v := range views {
		counts[v.PagePath]++
	}

	total := int64(len(views))
	result := make([]PageStat, 0, len(counts))
	for _, kc := range rank(counts) {
		result = append(result, PageStat{
			Page:       kc.key,
			Views:      kc.count,
			Percentage: percentage(kc.count, total),
		})
	}
	return result
}

// countryStats counts distinct IP addresses per country code.
func countryStats(sessions []events.VisitorSession, opts Options) []CountryStat {
	ipsByCountry := make(map[string]map[string]struct{})
	for _, s := range sessions {
		if opts.ExcludeEstimatedGeo && s.GeoEstimated {
			continue
		}
		code := strings.ToUpper(strings.TrimSpace(s.CountryCode))
		if code == "" {
			code = UnknownCountry
		}
		if ipsByCountry[code] == nil {
			ipsByCountry[code] = make(map[string]struct{})
		}
		ipsByCountry[code][s.IPAddress] = struct{}{}
	}

	counts := make(map[string]int64, len(ipsByCountry))
	for code, ips := range ipsByCountry {
		counts[code] = int64(len(ips))
	}

	namer := newCountryNamer()
	ranked := rank(counts)
	if len(ranked) > MaxCountries {
		ranked = ranked[:MaxCountries]
	}

	result := make([]CountryStat, 0, len(ranked))
	for _, kc := range ranked {
		result = append(result, CountryStat{
			Country:  kc.key,
			Name:     namer.name(kc.key),
			Flag:     countryFlag(kc.key),
			Visitors: kc.count,
		})
	}
	return result
}

// deviceStats counts sessions per device type; percentages are relative to
// the unique visitor count.
func deviceStats(sessions []events.VisitorSession, visitors int64) []DeviceStat {
	counts := make(map[string]int64)
	for _, s := range sessions {
		counts[strings.ToLower(strings.TrimSpace(s.DeviceType))]++
	}

	caser := cases.Title(language.AmericanEnglish)
	result := make([]DeviceStat, 0, len(counts))
	for _, kc := range rank(counts) {
		label := UnknownDevice
		if kc.key != "" {
			label = caser.String(kc.key)
		}
		result = append(result, DeviceStat{
			Device:     label,
			Count:      kc.count,
			Percentage: percentage(kc.count, visitors),
		})
	}
	return result
}

// trend fills every bucket of r, in ascending label order, with the distinct
// visitor ids and page views that fall in it. Empty buckets are reported
// with zero counts.
func trend(r timeframe.Range, views []events.PageViewEvent) []TrendPoint {
	keys := r.BucketKeys()
	index := make(map[string]int, len(keys))
	points := make([]TrendPoint, len(keys))
	seen := make([]map[string]struct{}, len(keys))
	for i, key := range keys {
		index[key] = i
		points[i] = TrendPoint{Date: key}
		seen[i] = make(map[string]struct{})
	}

	for _, v := range views {
		i, ok := index[r.BucketKey(v.CreatedAt)]
		if !ok {
			continue
		}
		points[i].Pageviews++
		if _, dup := seen[i][v.VisitorID]; !dup {
			seen[i][v.VisitorID] = struct{}{}
			points[i].Visitors++
		}
	}
	return points
}

func leadMetrics(counts []leads.StatusCount, visitors int64) LeadMetrics {
	var m LeadMetrics
	for _, c := range counts {
		m.TotalLeads += c.Count
		switch c.Status {
		case leads.StatusNew:
			m.New += c.Count
		case leads.StatusConverted:
			m.Converted += c.Count
		case leads.StatusNoInterest:
			m.NoInterest += c.Count
		case leads.StatusRejected:
			m.Rejected += c.Count
		default:
			if leads.IsInProgress(c.Status) {
				m.InProgress += c.Count
			}
		}
	}
	m.ConversionRate = percentage(m.TotalLeads, visitors)
	return m
}

func formStats(conversions []events.FormConversionEvent) []FormStat {
	type acc struct {
		started, completed, convertSeconds int64
	}
	byType := make(map[string]*acc)
	for _, c := range conversions {
		a := byType[c.FormType]
		if a == nil {
			a = &acc{}
			byType[c.FormType] = a
		}
		a.started++
		if c.Completed {
			a.completed++
			a.convertSeconds += int64(c.TimeToConvert)
		}
	}

	started := make(map[string]int64, len(byType))
	for formType, a := range byType {
		started[formType] = a.started
	}

	result := make([]FormStat, 0, len(byType))
	for _, kc := range rank(started) {
		a := byType[kc.key]
		result = append(result, FormStat{
			FormType:         kc.key,
			Started:          a.started,
			Completed:        a.completed,
			Abandoned:        a.started - a.completed,
			CompletionRate:   percentage(a.completed, a.started),
			AvgTimeToConvert: ratio(a.convertSeconds, a.completed),
		})
	}
	return result
}

type average struct {
	sum float64
	n   int64
}

func (a *average) add(v *float64) {
	if v != nil {
		a.sum += *v
		a.n++
	}
}

func (a average) value() float64 {
	if a.n == 0 {
		return 0
	}
	return a.sum / float64(a.n)
}

func webVitals(samples []events.PerformanceSample) WebVitals {
	var lcp, fid, cls, load, fcp average
	for _, s := range samples {
		lcp.add(s.LargestContentfulPaint)
		fid.add(s.FirstInputDelay)
		cls.add(s.CumulativeLayoutShift)
		load.add(s.LoadTime)
		fcp.add(s.FirstContentfulPaint)
	}
	return WebVitals{
		LargestContentfulPaint: lcp.value(),
		FirstInputDelay:        fid.value(),
		CumulativeLayoutShift:  cls.value(),
		LoadTime:               load.value(),
		FirstContentfulPaint:   fcp.value(),
		Samples:                int64(len(samples)),
	}
}
