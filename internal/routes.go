package internal

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "vitrine/api/v1"
	"vitrine/internal/auth"
	"vitrine/internal/collector"
	"vitrine/internal/config"
	"vitrine/internal/http"
	"vitrine/internal/http/middleware"
	"vitrine/internal/metrics"
	"vitrine/internal/profiles"
	"vitrine/internal/timeframe"
)

// AggregatePath is the admin aggregation function.
const AggregatePath = "/functions/v1/analytics-aggregate"

// publicCORSConfig is shared by every endpoint called from visitor pages.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()
	db := srv.GetDBManager().GetConnection()
	logger := srv.GetLogger()

	// Rate limiting would interfere with development and tests.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// 70 requests per minute per IP for visitor traffic
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// 10 requests per minute against credential guessing
	authRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(10),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// The collector's HTTP sink runs outside browsers and sends no fetch
	// metadata.
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:         true,
		CORSConfig:         publicCORSConfig,
		CustomMiddleware:   []fiber.Handler{publicRateLimiter},
		EnableSecFetchSite: cartridge.Bool(false),
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL(), cfg.TokenIssuer)

	tokenConfig := &cartridge.RouteConfig{
		CustomMiddleware:   []fiber.Handler{authRateLimiter},
		EnableSecFetchSite: cartridge.Bool(false),
	}

	adminFunctionConfig := &cartridge.RouteConfig{
		EnableCORS: true,
		CORSConfig: publicCORSConfig,
		CustomMiddleware: []fiber.Handler{
			middleware.RequireAdmin(middleware.AdminGate{
				Tokens: tokens,
				Lookup: func(ctx context.Context, id uint) (*profiles.Profile, error) {
					return profiles.FindByID(ctx, db, id)
				},
				Logger: logger,
				OnReject: func(status int) {
					if status == fiber.StatusUnauthorized {
						metrics.RecordAggregationRejected("unauthorized")
						return
					}
					metrics.RecordAggregationRejected("forbidden")
				},
			}),
		},
		EnableSecFetchSite: cartridge.Bool(false),
	}

	internalConfig := &cartridge.RouteConfig{
		EnableSecFetchSite: cartridge.Bool(false),
	}

	noContent := func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}

	// === ROOT ROUTES ===
	srv.Get("/_health", http.HealthIndexAction, internalConfig)
	srv.Head("/_health", http.HealthIndexAction, internalConfig)
	srv.Get("/metrics", func(ctx *cartridge.Context) error {
		return metrics.Handler()(ctx.Ctx)
	}, internalConfig)

	// === INGESTION ROUTES ===
	ingestion := map[string]func(*cartridge.Context) error{
		collector.SessionsPath:    v1.IngestSessionHandler,
		collector.PageViewsPath:   v1.IngestPageViewHandler,
		collector.PerformancePath: v1.IngestPerformanceHandler,
		collector.ConversionsPath: v1.IngestConversionHandler,
	}
	for path, handler := range ingestion {
		srv.Post(path, handler, publicAPIConfig)
		srv.Options(path, noContent, publicAPIConfig)
	}

	// === AUTHENTICATION ROUTES ===
	srv.Post("/auth/v1/token", http.NewTokenAction(tokens), tokenConfig)

	// === ADMIN FUNCTIONS ===
	resolver := timeframe.NewResolver(cfg.Location())
	srv.Post(AggregatePath, http.NewAggregateAction(http.GormStoreFactory, resolver), adminFunctionConfig)
	srv.Options(AggregatePath, noContent, publicAPIConfig)
}
