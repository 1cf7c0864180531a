package http

import (
	"errors"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"vitrine/internal/analytics"
	"vitrine/internal/metrics"
	"vitrine/internal/timeframe"
	"vitrine/internal/validation"
)

const errAggregateFailed = "Failed to aggregate analytics"

// AggregateRequest is the optional body of the aggregation function.
type AggregateRequest struct {
	TimeRange           string `json:"timeRange" validate:"max=32"`
	StartDate           string `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate             string `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	ExcludeEstimatedGeo bool   `json:"excludeEstimatedGeo"`
}

// StoreFactory returns the analytics store for a request.
type StoreFactory func(ctx *cartridge.Context) analytics.Store

// GormStoreFactory reads from the request's database connection.
func GormStoreFactory(ctx *cartridge.Context) analytics.Store {
	return analytics.NewGormStore(ctx.DB())
}

// NewAggregateAction builds the handler of POST /functions/v1/analytics-aggregate.
// It expects RequireAdmin to have run.
func NewAggregateAction(stores StoreFactory, resolver *timeframe.Resolver) func(*cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		start := time.Now()

		req := parseAggregateRequest(ctx)
		rng := resolver.Resolve(timeframe.Request{
			TimeRange: req.TimeRange,
			StartDate: req.StartDate,
			EndDate:   req.EndDate,
		})

		service := analytics.NewService(stores(ctx), ctx.Logger)
		report, err := service.Aggregate(ctx.UserContext(), rng, analytics.Options{
			ExcludeEstimatedGeo: req.ExcludeEstimatedGeo,
		})
		if err != nil {
			metrics.ObserveAggregation("error", start)
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": errAggregateFailed,
				"code":  fiber.StatusInternalServerError,
			})
		}

		metrics.ObserveAggregation("ok", start)
		ctx.Logger.Debug("Aggregated analytics",
			slog.String("range", string(rng.Label)),
			slog.Int64("visitors", report.Visitors),
			slog.Duration("elapsed", time.Since(start)))
		return ctx.JSON(report)
	}
}

// parseAggregateRequest never fails. An empty or malformed body resolves to
// today, and invalid fields are dropped one by one.
func parseAggregateRequest(ctx *cartridge.Context) AggregateRequest {
	var req AggregateRequest
	if len(ctx.Body()) == 0 {
		return req
	}
	if err := json.Unmarshal(ctx.Body(), &req); err != nil {
		ctx.Logger.Debug("Ignoring malformed aggregate request", slog.Any("error", err))
		return AggregateRequest{}
	}
	if err := validation.Struct(&req); err != nil {
		ctx.Logger.Debug("Ignoring invalid aggregate request fields", slog.Any("error", err))
		var verr *validation.Error
		if !errors.As(err, &verr) {
			return AggregateRequest{ExcludeEstimatedGeo: req.ExcludeEstimatedGeo}
		}
		for _, f := range verr.Fields {
			clearField(&req, f.Field)
		}
	}
	return req
}

// clearField drops one invalid field so the rest of the request still applies.
func clearField(req *AggregateRequest, field string) {
	switch field {
	case "timeRange":
		req.TimeRange = ""
	case "startDate", "endDate":
		// A lone date is unusable, so both go.
		req.StartDate, req.EndDate = "", ""
	}
}
