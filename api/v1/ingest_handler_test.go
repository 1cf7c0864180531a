// Package v1_test contains tests for the ingestion handlers
package v1_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"vitrine/internal/events"
	"vitrine/internal/testsupport"
)

func postJSON(t *testing.T, app *fiber.App, path string, payload any, headers map[string]string) (int, map[string]any) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp.StatusCode, decoded
}

func setupApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)
	return testsupport.CreateMinimalTestApp(t, db), db
}

func TestIngestSession(t *testing.T) {
	t.Run("accepts and upserts one row per session", func(t *testing.T) {
		app, db := setupApp(t)
		first := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

		payload := map[string]any{
			"visitor_id":       "lq2x9abc123def456",
			"session_id":       "lq2x9zzz987yyy654",
			"ip_address":       "84.241.200.10",
			"country_code":     "NL",
			"page_views":       1,
			"session_duration": 0,
			"is_bounce":        true,
			"first_visit_at":   first,
			"last_activity_at": first,
		}
		status, body := postJSON(t, app, "/x/api/v1/sessions", payload, nil)
		require.Equal(t, http.StatusAccepted, status)
		assert.Equal(t, "accepted", body["status"])

		payload["page_views"] = 2
		payload["session_duration"] = 40
		payload["is_bounce"] = false
		payload["last_activity_at"] = first.Add(40 * time.Second)
		status, _ = postJSON(t, app, "/x/api/v1/sessions", payload, nil)
		require.Equal(t, http.StatusAccepted, status)

		var rows []events.VisitorSession
		require.NoError(t, db.Find(&rows).Error)
		require.Len(t, rows, 1)
		assert.Equal(t, 2, rows[0].PageViews)
		assert.Equal(t, 40, rows[0].SessionDuration)
	})

	t.Run("fills ip and device from the request", func(t *testing.T) {
		app, db := setupApp(t)

		payload := map[string]any{
			"visitor_id": "v-headers",
			"session_id": "s-headers",
			"page_views": 1,
		}
		headers := map[string]string{
			"X-Forwarded-For": "10.0.0.1, 84.241.200.10",
			"User-Agent":      "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
		}
		status, _ := postJSON(t, app, "/x/api/v1/sessions", payload, headers)
		require.Equal(t, http.StatusAccepted, status)

		var row events.VisitorSession
		require.NoError(t, db.Where("visitor_id = ?", "v-headers").First(&row).Error)
		assert.Equal(t, "84.241.200.10", row.IPAddress)
		assert.Equal(t, "mobile", row.DeviceType)
		assert.Equal(t, "Safari", row.Browser)
		assert.Equal(t, "iOS", row.OS)
		assert.Contains(t, row.UserAgent, "iPhone")
	})

	t.Run("rejects missing identifiers", func(t *testing.T) {
		app, db := setupApp(t)

		status, body := postJSON(t, app, "/x/api/v1/sessions", map[string]any{"page_views": 1}, nil)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Invalid request", body["error"])
		assert.NotEmpty(t, body["fields"])

		var count int64
		require.NoError(t, db.Model(&events.VisitorSession{}).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("rejects an unknown device type", func(t *testing.T) {
		app, _ := setupApp(t)

		status, _ := postJSON(t, app, "/x/api/v1/sessions", map[string]any{
			"visitor_id":  "v",
			"session_id":  "s",
			"page_views":  1,
			"device_type": "smartwatch",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		app, _ := setupApp(t)

		req := httptest.NewRequest(http.MethodPost, "/x/api/v1/sessions", bytes.NewReader([]byte("{not json")))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestIngestPageView(t *testing.T) {
	app, db := setupApp(t)

	payload := map[string]any{
		"session_id":    "s1",
		"visitor_id":    "v1",
		"page_path":     "/kozijnen",
		"referrer":      "https://www.google.com/",
		"is_entry_page": true,
		"ip_address":    "84.241.200.10",
	}
	for i := 0; i < 2; i++ {
		status, _ := postJSON(t, app, "/x/api/v1/pageviews", payload, nil)
		require.Equal(t, http.StatusAccepted, status)
	}

	var views []events.PageViewEvent
	require.NoError(t, db.Find(&views).Error)
	require.Len(t, views, 2)
	assert.Equal(t, "/kozijnen", views[0].PagePath)
	assert.True(t, views[0].IsEntryPage)
	assert.False(t, views[0].CreatedAt.IsZero())

	t.Run("page path must be absolute", func(t *testing.T) {
		status, _ := postJSON(t, app, "/x/api/v1/pageviews", map[string]any{
			"session_id": "s1",
			"visitor_id": "v1",
			"page_path":  "kozijnen",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestIngestPerformanceMergesOnePageLoad(t *testing.T) {
	app, db := setupApp(t)
	loadID := "0b6f3a5e-8c1d-4f7a-9e2b-3c4d5e6f7a8b"

	status, _ := postJSON(t, app, "/x/api/v1/performance", map[string]any{
		"page_load_id":             loadID,
		"session_id":               "s1",
		"page_path":                "/",
		"largest_contentful_paint": 1800.5,
	}, nil)
	require.Equal(t, http.StatusAccepted, status)

	status, _ = postJSON(t, app, "/x/api/v1/performance", map[string]any{
		"page_load_id":            loadID,
		"session_id":              "s1",
		"page_path":               "/",
		"cumulative_layout_shift": 0.02,
	}, nil)
	require.Equal(t, http.StatusAccepted, status)

	var rows []events.PerformanceSample
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].LargestContentfulPaint)
	require.NotNil(t, rows[0].CumulativeLayoutShift)
	assert.Equal(t, 1800.5, *rows[0].LargestContentfulPaint)
	assert.Equal(t, 0.02, *rows[0].CumulativeLayoutShift)

	t.Run("negative metrics are rejected", func(t *testing.T) {
		status, _ := postJSON(t, app, "/x/api/v1/performance", map[string]any{
			"page_load_id": loadID,
			"session_id":   "s1",
			"load_time":    -1,
		}, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("page load id must be a uuid", func(t *testing.T) {
		status, _ := postJSON(t, app, "/x/api/v1/performance", map[string]any{
			"page_load_id": "not-a-uuid",
			"session_id":   "s1",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestIngestConversion(t *testing.T) {
	app, db := setupApp(t)

	status, _ := postJSON(t, app, "/x/api/v1/conversions", map[string]any{
		"session_id":      "s1",
		"visitor_id":      "v1",
		"form_type":       "offerte",
		"completed":       true,
		"time_to_convert": 95,
		"funnel":          `{"steps":["maten","kleur","contact"]}`,
	}, nil)
	require.Equal(t, http.StatusAccepted, status)

	var row events.FormConversionEvent
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, "offerte", row.FormType)
	assert.True(t, row.Completed)
	assert.Equal(t, 95, row.TimeToConvert)

	t.Run("funnel must be json", func(t *testing.T) {
		status, _ := postJSON(t, app, "/x/api/v1/conversions", map[string]any{
			"session_id": "s1",
			"form_type":  "offerte",
			"funnel":     "{broken",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestIngestPreflight(t *testing.T) {
	app, _ := setupApp(t)

	req := httptest.NewRequest(http.MethodOptions, "/x/api/v1/pageviews", nil)
	req.Header.Set("Origin", "https://www.example.nl")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	assert.Less(t, resp.StatusCode, 300)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
