package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"vitrine/internal"
	vhttp "vitrine/internal/http"
	"vitrine/internal/analytics"
	"vitrine/internal/events"
	"vitrine/internal/leads"
	"vitrine/internal/profiles"
	"vitrine/internal/testsupport"
	"vitrine/internal/timeframe"
)

func doRequest(t *testing.T, app *fiber.App, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	if len(raw) > 0 && method != http.MethodHead {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp.StatusCode, decoded
}

func seedNLScenario(t *testing.T, db *gorm.DB) {
	t.Helper()

	morning := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	testsupport.CreateSessions(t, db,
		testsupport.SessionRow{VisitorID: "A", IP: "1.1.1.1", CountryCode: "NL", DeviceType: "desktop", PageViews: 3, Duration: 120, At: morning},
		testsupport.SessionRow{VisitorID: "B", IP: "2.2.2.2", CountryCode: "NL", DeviceType: "mobile", PageViews: 2, Duration: 60, At: morning.Add(time.Hour)},
	)
	for i := 0; i < 3; i++ {
		testsupport.CreatePageViews(t, db, testsupport.PageViewRow{VisitorID: "A", IP: "1.1.1.1", Path: "/kozijnen", At: morning})
	}
	for i := 0; i < 2; i++ {
		testsupport.CreatePageViews(t, db, testsupport.PageViewRow{VisitorID: "B", IP: "2.2.2.2", Path: "/deuren", At: morning.Add(time.Hour)})
	}
	testsupport.CreateLead(t, db, leads.StatusNew, morning)
}

func TestAggregateAction(t *testing.T) {
	janFirst := map[string]any{"startDate": "2024-01-01", "endDate": "2024-01-01"}

	t.Run("admin receives the report", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)
		seedNLScenario(t, db)

		admin := testsupport.CreateTestProfile(t, db, "admin@vitrine.test", "correct-horse", profiles.RoleAdmin)
		app := testsupport.CreateMinimalTestApp(t, db)

		status, body := doRequest(t, app, http.MethodPost, internal.AggregatePath, testsupport.IssueTestToken(t, admin), janFirst)
		require.Equal(t, http.StatusOK, status, "body: %v", body)

		assert.Equal(t, 2.0, body["visitors"])
		assert.Equal(t, 5.0, body["pageviews"])
		assert.Equal(t, 2.5, body["viewsPerVisit"])

		countries, ok := body["countries"].([]any)
		require.True(t, ok)
		require.Len(t, countries, 1)
		nl := countries[0].(map[string]any)
		assert.Equal(t, "NL", nl["country"])
		assert.Equal(t, 2.0, nl["visitors"])

		rng := body["range"].(map[string]any)
		assert.Equal(t, "custom", rng["label"])
		assert.Equal(t, "hour", rng["bucket"])
	})

	t.Run("missing token is 401", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		app := testsupport.CreateMinimalTestApp(t, dbManager.GetConnection())

		status, body := doRequest(t, app, http.MethodPost, internal.AggregatePath, "", janFirst)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, 401.0, body["code"])
	})

	t.Run("viewer is 403", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		viewer := testsupport.CreateTestProfile(t, db, "viewer@vitrine.test", "correct-horse", profiles.RoleViewer)
		app := testsupport.CreateMinimalTestApp(t, db)

		status, _ := doRequest(t, app, http.MethodPost, internal.AggregatePath, testsupport.IssueTestToken(t, viewer), janFirst)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("token of a deleted profile is 403", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		admin := testsupport.CreateTestProfile(t, db, "gone@vitrine.test", "correct-horse", profiles.RoleAdmin)
		token := testsupport.IssueTestToken(t, admin)
		require.NoError(t, db.Delete(&profiles.Profile{}, admin.ID).Error)
		app := testsupport.CreateMinimalTestApp(t, db)

		status, _ := doRequest(t, app, http.MethodPost, internal.AggregatePath, token, janFirst)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("malformed body resolves to today", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		admin := testsupport.CreateTestProfile(t, db, "admin2@vitrine.test", "correct-horse", profiles.RoleAdmin)
		app := testsupport.CreateMinimalTestApp(t, db)

		req := httptest.NewRequest(http.MethodPost, internal.AggregatePath, bytes.NewReader([]byte("{oops")))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+testsupport.IssueTestToken(t, admin))
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var report analytics.Report
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
		assert.Equal(t, timeframe.RangeLabelToday, report.Range.Label)
		assert.Zero(t, report.Visitors)
		assert.Len(t, report.Trend, 24)
	})

	t.Run("invalid dates keep the time range", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		admin := testsupport.CreateTestProfile(t, db, "admin3@vitrine.test", "correct-horse", profiles.RoleAdmin)
		app := testsupport.CreateMinimalTestApp(t, db)

		status, body := doRequest(t, app, http.MethodPost, internal.AggregatePath, testsupport.IssueTestToken(t, admin), map[string]any{
			"timeRange": "gisteren",
			"startDate": "01-01-2024",
			"endDate":   "2024-01-01",
		})
		require.Equal(t, http.StatusOK, status, "body: %v", body)
		rng := body["range"].(map[string]any)
		assert.Equal(t, "yesterday", rng["label"])
	})
}

type brokenStore struct {
	analytics.Store
}

func (brokenStore) Sessions(context.Context, timeframe.Range) ([]events.VisitorSession, error) {
	return nil, errors.New("disk I/O error")
}

func TestAggregateActionStoreFailure(t *testing.T) {
	srv := ctestsupport.NewTestServer(t, ctestsupport.TestServerOptions{
		DisableMiddleware: true,
		RouteMountFunc: func(s *cartridge.Server) {
			stores := func(ctx *cartridge.Context) analytics.Store {
				return brokenStore{Store: vhttp.GormStoreFactory(ctx)}
			}
			s.Post("/aggregate", vhttp.NewAggregateAction(stores, timeframe.NewResolver(time.UTC)), &cartridge.RouteConfig{
				EnableSecFetchSite: cartridge.Bool(false),
			})
		},
	})

	status, body := doRequest(t, srv.App, http.MethodPost, "/aggregate", "", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Failed to aggregate analytics", body["error"])
	assert.Equal(t, 500.0, body["code"])
	assert.NotContains(t, body, "visitors", "no partial report")
}

func TestTokenAction(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)
	testsupport.CreateTestProfile(t, db, "admin@vitrine.test", "correct-horse", profiles.RoleAdmin)
	app := testsupport.CreateMinimalTestApp(t, db)

	t.Run("valid credentials issue a usable token", func(t *testing.T) {
		status, body := doRequest(t, app, http.MethodPost, "/auth/v1/token", "", map[string]string{
			"email":    "Admin@Vitrine.test",
			"password": "correct-horse",
		})
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "Bearer", body["token_type"])

		token, _ := body["access_token"].(string)
		require.NotEmpty(t, token)

		status, _ = doRequest(t, app, http.MethodPost, internal.AggregatePath, token, nil)
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("wrong password is 401", func(t *testing.T) {
		status, body := doRequest(t, app, http.MethodPost, "/auth/v1/token", "", map[string]string{
			"email":    "admin@vitrine.test",
			"password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "Invalid email or password", body["error"])
	})

	t.Run("unknown email is 401", func(t *testing.T) {
		status, _ := doRequest(t, app, http.MethodPost, "/auth/v1/token", "", map[string]string{
			"email":    "nobody@vitrine.test",
			"password": "correct-horse",
		})
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("invalid body is 400", func(t *testing.T) {
		status, _ := doRequest(t, app, http.MethodPost, "/auth/v1/token", "", map[string]string{"email": "not-an-email"})
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestHealthIndexAction(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	app := testsupport.CreateMinimalTestApp(t, dbManager.GetConnection())

	status, body := doRequest(t, app, http.MethodGet, "/_health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["db_status"])
}

func TestMetricsEndpoint(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	app := testsupport.CreateMinimalTestApp(t, dbManager.GetConnection())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), 30000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "vitrine_")
}
