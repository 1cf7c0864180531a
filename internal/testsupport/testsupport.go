package testsupport

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vitrine/internal"
	"vitrine/internal/auth"
	"vitrine/internal/config"
	"vitrine/internal/database"
	"vitrine/internal/events"
	"vitrine/internal/leads"
	"vitrine/internal/profiles"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// TestConfig returns the process configuration forced into the test
// environment. An explicitly configured non-test environment is refused by
// SetupTestDBManager.
func TestConfig() *config.Config {
	if os.Getenv("VITRINE_ENV") == "" {
		os.Setenv("VITRINE_ENV", config.Test)
		config.Reset()
	}
	return config.GetConfig()
}

// SetupTestDB creates a test database with all models migrated.
// Uses a named in-memory database with cache=shared to allow multiple connections
// to share the same database within a test. Caches the database by test name
// so multiple calls within the same test return the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")

	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := TestConfig()

	// SAFETY CHECK: Ensure we're in test environment
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set VITRINE_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	return NewTestDBManager(db), GetLogger()
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	if len(tableNames) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tableNames {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateTestProfile creates a profile with a hashed password.
func CreateTestProfile(t *testing.T, db *gorm.DB, email, password, role string) *profiles.Profile {
	t.Helper()

	profile, err := profiles.Create(context.Background(), db, GetLogger(), email, password, role)
	require.NoError(t, err)
	return profile
}

// IssueTestToken signs a bearer token for profile with the test config.
func IssueTestToken(t *testing.T, profile *profiles.Profile) string {
	t.Helper()

	cfg := TestConfig()
	token, _, err := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL(), cfg.TokenIssuer).Issue(profile.ID, profile.Email)
	require.NoError(t, err)
	return token
}

// SessionRow describes a visitor session for seeding.
type SessionRow struct {
	VisitorID   string
	SessionID   string
	IP          string
	CountryCode string
	DeviceType  string
	PageViews   int
	Duration    int
	Bounce      bool
	Estimated   bool
	At          time.Time
}

// CreateSessions inserts visitor sessions directly.
func CreateSessions(t *testing.T, db *gorm.DB, rows ...SessionRow) {
	t.Helper()

	for _, r := range rows {
		sessionID := r.SessionID
		if sessionID == "" {
			sessionID = r.VisitorID + "-session"
		}
		session := &events.VisitorSession{
			VisitorID:       r.VisitorID,
			SessionID:       sessionID,
			IPAddress:       r.IP,
			CountryCode:     r.CountryCode,
			DeviceType:      r.DeviceType,
			PageViews:       r.PageViews,
			SessionDuration: r.Duration,
			IsBounce:        r.Bounce,
			GeoEstimated:    r.Estimated,
			FirstVisitAt:    r.At.UTC(),
			LastActivityAt:  r.At.UTC(),
		}
		require.NoError(t, db.Create(session).Error)
	}
}

// PageViewRow describes a page view for seeding.
type PageViewRow struct {
	VisitorID string
	SessionID string
	Path      string
	Referrer  string
	UTMSource string
	IP        string
	At        time.Time
}

// CreatePageViews inserts page views directly.
func CreatePageViews(t *testing.T, db *gorm.DB, rows ...PageViewRow) {
	t.Helper()

	for _, r := range rows {
		sessionID := r.SessionID
		if sessionID == "" {
			sessionID = r.VisitorID + "-session"
		}
		path := r.Path
		if path == "" {
			path = "/"
		}
		view := &events.PageViewEvent{
			VisitorID: r.VisitorID,
			SessionID: sessionID,
			PagePath:  path,
			Referrer:  r.Referrer,
			UTMSource: r.UTMSource,
			IPAddress: r.IP,
			CreatedAt: r.At.UTC(),
		}
		require.NoError(t, db.Create(view).Error)
	}
}

// CreateLead inserts a lead with the given status.
func CreateLead(t *testing.T, db *gorm.DB, status string, at time.Time) leads.Lead {
	t.Helper()

	lead := leads.Lead{
		Name:      "Test Lead",
		Email:     "lead@example.com",
		Status:    status,
		CreatedAt: at.UTC(),
	}
	require.NoError(t, db.Create(&lead).Error)
	return lead
}

// CreateMinimalTestApp creates a test Fiber app with all routes
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := TestConfig()

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager
	cfg.StaticDirectory = appConfig.PublicDirectory
	cfg.StaticPrefix = appConfig.PublicAssetsUrlPrefix
	cfg.TemplatesDirectory = appConfig.PublicDirectory
	// The collector's HTTP sink and the dashboard call these endpoints
	// without browser fetch metadata.
	cfg.EnableSecFetchSite = false

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}
