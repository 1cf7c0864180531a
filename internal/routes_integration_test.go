package internal

import (
	"net/http/httptest"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitrine/internal/collector"
)

func findRoute(routes []fiber.Route, method, path string) *fiber.Route {
	for idx := range routes {
		if routes[idx].Method == method && routes[idx].Path == path {
			return &routes[idx]
		}
	}
	return nil
}

func handlerNames(route *fiber.Route) []string {
	names := make([]string, 0, len(route.Handlers))
	for _, handler := range route.Handlers {
		names = append(names, runtime.FuncForPC(reflect.ValueOf(handler).Pointer()).Name())
	}
	return names
}

func TestIngestionRoutesRateLimited(t *testing.T) {
	srv := testsupport.NewTestServer(t, testsupport.TestServerOptions{
		RouteMountFunc: MountAppRoutes,
	})
	routes := srv.App.GetRoutes(true)

	for _, path := range []string{
		collector.SessionsPath,
		collector.PageViewsPath,
		collector.PerformancePath,
		collector.ConversionsPath,
	} {
		route := findRoute(routes, fiber.MethodPost, path)
		require.NotNil(t, route, "expected %s to be registered", path)
		require.NotNil(t, findRoute(routes, fiber.MethodOptions, path), "expected preflight for %s", path)

		// The limiter is wrapped in a conditional function that only applies
		// in production; the wrapper is present in every environment.
		names := handlerNames(route)
		hasRateLimiter := false
		for _, name := range names {
			if strings.Contains(name, "middleware/limiter") || strings.Contains(name, "MountAppRoutes.func") {
				hasRateLimiter = true
				break
			}
		}
		require.Truef(t, hasRateLimiter, "expected rate limiter middleware for %s, handlers: %v", path, names)
	}
}

func TestAdminRoutesRegistered(t *testing.T) {
	srv := testsupport.NewTestServer(t, testsupport.TestServerOptions{
		RouteMountFunc: MountAppRoutes,
	})
	routes := srv.App.GetRoutes(true)

	require.NotNil(t, findRoute(routes, fiber.MethodPost, AggregatePath))
	require.NotNil(t, findRoute(routes, fiber.MethodPost, "/auth/v1/token"))
	require.NotNil(t, findRoute(routes, fiber.MethodGet, "/_health"))
	require.NotNil(t, findRoute(routes, fiber.MethodGet, "/metrics"))

	aggregate := findRoute(routes, fiber.MethodPost, AggregatePath)
	hasGate := false
	for _, name := range handlerNames(aggregate) {
		// RequireAdmin may be inlined into MountAppRoutes.
		if strings.Contains(name, "RequireAdmin") {
			hasGate = true
		}
	}
	require.True(t, hasGate, "aggregation must sit behind RequireAdmin, handlers: %v", handlerNames(aggregate))
}

func TestAggregateRouteRejectsAnonymous(t *testing.T) {
	srv := testsupport.NewTestServer(t, testsupport.TestServerOptions{
		RouteMountFunc: MountAppRoutes,
	})

	for _, auth := range []string{"", "Bearer not-a-token", "Basic YWRtaW46YWRtaW4="} {
		req := httptest.NewRequest(fiber.MethodPost, AggregatePath, nil)
		req.Header.Set("Sec-Fetch-Site", "same-origin")
		if auth != "" {
			req.Header.Set(fiber.HeaderAuthorization, auth)
		}
		resp, err := srv.App.Test(req, 30000)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, "authorization %q", auth)
	}
}
