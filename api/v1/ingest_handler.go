package v1

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"vitrine/internal/config"
	"vitrine/internal/events"
	"vitrine/internal/metrics"
	"vitrine/internal/pkg/device"
	"vitrine/internal/validation"
)

// Row kinds, also used as metric labels.
const (
	KindSession     = "session"
	KindPageView    = "pageview"
	KindPerformance = "performance"
	KindConversion  = "conversion"
)

const (
	errInvalidRequest = "Invalid request"
	errStorage        = "Failed to store event"
)

// IngestSessionHandler upserts the visitor session row.
func IngestSessionHandler(ctx *cartridge.Context) error {
	var payload SessionPayload
	if err := parsePayload(ctx.Ctx, &payload); err != nil {
		return rejectPayload(ctx, KindSession, err)
	}

	session := payload.model()
	if session.IPAddress == "" {
		session.IPAddress = clientIP(ctx.Ctx)
	}
	if session.UserAgent == "" {
		session.UserAgent = userAgent(ctx.Ctx)
	}
	if session.DeviceType == "" {
		info := device.Classify(session.UserAgent, device.Screen{
			Width:          session.ScreenWidth,
			Height:         session.ScreenHeight,
			ViewportWidth:  session.ViewportWidth,
			ViewportHeight: session.ViewportHeight,
		})
		session.DeviceType, session.Browser, session.OS = info.Type, info.Browser, info.OS
	}

	return persist(ctx, KindSession, func(c context.Context, repo *events.Repository) error {
		return repo.UpsertSession(c, session)
	})
}

// IngestPageViewHandler appends a page view.
func IngestPageViewHandler(ctx *cartridge.Context) error {
	var payload PageViewPayload
	if err := parsePayload(ctx.Ctx, &payload); err != nil {
		return rejectPayload(ctx, KindPageView, err)
	}

	view := payload.model()
	if view.IPAddress == "" {
		view.IPAddress = clientIP(ctx.Ctx)
	}
	if view.DeviceType == "" {
		info := device.Classify(userAgent(ctx.Ctx), device.Screen{Width: view.ScreenWidth, Height: view.ScreenHeight})
		view.DeviceType, view.Browser, view.OS = info.Type, info.Browser, info.OS
	}

	return persist(ctx, KindPageView, func(c context.Context, repo *events.Repository) error {
		return repo.InsertPageView(c, view)
	})
}

// IngestPerformanceHandler merges web vitals into the row of a page load.
func IngestPerformanceHandler(ctx *cartridge.Context) error {
	var payload PerformancePayload
	if err := parsePayload(ctx.Ctx, &payload); err != nil {
		return rejectPayload(ctx, KindPerformance, err)
	}

	sample := payload.model()
	return persist(ctx, KindPerformance, func(c context.Context, repo *events.Repository) error {
		return repo.UpsertPerformance(c, sample)
	})
}

// IngestConversionHandler appends a form conversion.
func IngestConversionHandler(ctx *cartridge.Context) error {
	var payload ConversionPayload
	if err := parsePayload(ctx.Ctx, &payload); err != nil {
		return rejectPayload(ctx, KindConversion, err)
	}

	conversion := payload.model()
	return persist(ctx, KindConversion, func(c context.Context, repo *events.Repository) error {
		return repo.InsertFormConversion(c, conversion)
	})
}

func parsePayload(c *fiber.Ctx, payload any) error {
	if err := c.BodyParser(payload); err != nil {
		return err
	}
	return validation.Struct(payload)
}

func rejectPayload(ctx *cartridge.Context, kind string, err error) error {
	ctx.Logger.Debug("Rejected ingestion payload",
		slog.String("kind", kind),
		slog.Any("error", err))
	metrics.RecordIngestFailure(kind, "invalid")

	body := fiber.Map{
		"error": errInvalidRequest,
		"code":  http.StatusBadRequest,
	}
	var validationErr *validation.Error
	if errors.As(err, &validationErr) {
		body["fields"] = validationErr.Fields
	}
	return ctx.Status(http.StatusBadRequest).JSON(body)
}

func persist(ctx *cartridge.Context, kind string, write func(context.Context, *events.Repository) error) error {
	repo := events.NewRepository(ctx.DBManager, ctx.Logger, config.GetConfig().BounceMode)
	if err := write(ctx.UserContext(), repo); err != nil {
		ctx.Logger.Error("Failed to store ingested row",
			slog.String("kind", kind),
			slog.Any("error", err))
		metrics.RecordIngestFailure(kind, "storage")

		status := http.StatusInternalServerError
		if isBusy(err) {
			status = http.StatusServiceUnavailable
		}
		return ctx.Status(status).JSON(fiber.Map{
			"error": errStorage,
			"code":  status,
		})
	}

	metrics.RecordIngest(kind)
	return ctx.Status(http.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func userAgent(c *fiber.Ctx) string {
	if forwarded := c.Get("X-Forwarded-User-Agent"); forwarded != "" {
		return forwarded
	}
	return c.Get(fiber.HeaderUserAgent)
}
