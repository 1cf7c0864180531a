package timeframe

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Request is the range part of a report request. Any field may be empty.
type Request struct {
	TimeRange string
	StartDate string
	EndDate   string
}

// rangeTokens maps normalized tokens, English and Dutch, to labels.
var rangeTokens = map[string]RangeLabel{
	"today":          RangeLabelToday,
	"vandaag":        RangeLabelToday,
	"yesterday":      RangeLabelYesterday,
	"gisteren":       RangeLabelYesterday,
	"last24hours":    RangeLabelLast24Hours,
	"laatste24uur":   RangeLabelLast24Hours,
	"last7days":      RangeLabelLast7Days,
	"laatste7dagen":  RangeLabelLast7Days,
	"last30days":     RangeLabelLast30Days,
	"laatste30dagen": RangeLabelLast30Days,
	"thismonth":      RangeLabelThisMonth,
	"dezemaand":      RangeLabelThisMonth,
	"lastmonth":      RangeLabelLastMonth,
	"vorigemaand":    RangeLabelLastMonth,
}

// Resolver turns report requests into ranges. It never fails: anything it
// cannot interpret resolves to today.
type Resolver struct {
	loc          *time.Location
	timeProvider TimeProvider
}

func NewResolver(loc *time.Location, timeProvider ...TimeProvider) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	var provider TimeProvider = &DefaultTimeProvider{}
	if len(timeProvider) > 0 && timeProvider[0] != nil {
		provider = timeProvider[0]
	}
	return &Resolver{loc: loc, timeProvider: provider}
}

// Location returns the resolver's timezone.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Resolve picks explicit dates when both parse and are ordered, then the
// range token, then today.
func (r *Resolver) Resolve(req Request) Range {
	if rng, ok := r.explicit(req.StartDate, req.EndDate); ok {
		return rng
	}
	return r.Token(req.TimeRange)
}

// Token resolves a named range token.
func (r *Resolver) Token(token string) Range {
	now := r.timeProvider.Now(r.loc)

	label, ok := rangeTokens[normalizeToken(token)]
	if !ok {
		label = RangeLabelToday
	}

	switch label {
	case RangeLabelYesterday:
		y := now.AddDate(0, 0, -1)
		return Range{Start: startOfDay(y), End: endOfDay(y), Label: label}
	case RangeLabelLast24Hours:
		return Range{Start: now.Add(-24 * time.Hour), End: now, Label: label}
	case RangeLabelLast7Days:
		return Range{Start: startOfDay(now.AddDate(0, 0, -6)), End: endOfDay(now), Label: label}
	case RangeLabelLast30Days:
		return Range{Start: startOfDay(now.AddDate(0, 0, -29)), End: endOfDay(now), Label: label}
	case RangeLabelThisMonth:
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, r.loc)
		return Range{Start: first, End: endOfDay(now), Label: label}
	case RangeLabelLastMonth:
		firstThis := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, r.loc)
		firstPrev := firstThis.AddDate(0, -1, 0)
		return Range{Start: firstPrev, End: endOfDay(firstThis.AddDate(0, 0, -1)), Label: label}
	default:
		return Range{Start: startOfDay(now), End: endOfDay(now), Label: RangeLabelToday}
	}
}

func (r *Resolver) explicit(startDate, endDate string) (Range, bool) {
	startDate, endDate = strings.TrimSpace(startDate), strings.TrimSpace(endDate)
	if startDate == "" || endDate == "" {
		return Range{}, false
	}

	start, err := time.ParseInLocation(dateLayout, startDate, r.loc)
	if err != nil {
		return Range{}, false
	}
	end, err := time.ParseInLocation(dateLayout, endDate, r.loc)
	if err != nil {
		return Range{}, false
	}
	if end.Before(start) {
		return Range{}, false
	}

	return Range{Start: startOfDay(start), End: endOfDay(end), Label: RangeLabelCustom}, true
}

func normalizeToken(token string) string {
	token = strings.ToLower(strings.TrimSpace(token))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(token)
}
