package seeder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"vitrine/internal/collector"
	"vitrine/internal/config"
	"vitrine/internal/events"
	"vitrine/internal/leads"
	"vitrine/internal/pkg/device"
	"vitrine/internal/pkg/geolocation"
	"vitrine/internal/profiles"
)

// DefaultAdminEmail and DefaultAdminPassword are the credentials of the
// seeded admin profile.
const (
	DefaultAdminEmail    = "admin@example.com"
	DefaultAdminPassword = "password"
	defaultSiteURL       = "https://www.example.nl"
)

// Seeder fills a database with synthetic visits and leads. Visits are
// produced by running collector.Tracker against the database, so seeded
// rows have exactly the shape the collector writes.
type Seeder struct {
	DBManager  cartridge.DBManager
	Logger     *slog.Logger
	VisitCount int
	Days       int
	BounceMode config.BounceMode

	rand *rand.Rand
}

// NewSeeder creates a new seeder instance
func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, visitCount int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		DBManager:  dbManager,
		Logger:     logger,
		VisitCount: visitCount,
		Days:       30,
		rand:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
}

// WithSeed makes the generated data reproducible.
func (s *Seeder) WithSeed(seed uint64) *Seeder {
	s.rand = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return s
}

// Run executes the seeding process
func (s *Seeder) Run(ctx context.Context) error {
	start := time.Now()
	s.Logger.Info("Starting database seeding...", slog.Int("visits", s.VisitCount), slog.Int("days", s.Days))

	if _, err := s.seedProfile(ctx); err != nil {
		return fmt.Errorf("failed to seed profile: %w", err)
	}

	visits, err := s.seedVisits(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed visits: %w", err)
	}

	created, err := s.seedLeads(ctx, visits/20+1)
	if err != nil {
		return fmt.Errorf("failed to seed leads: %w", err)
	}

	s.Logger.Info("Seeding completed successfully",
		slog.Int("visits", visits),
		slog.Int("leads", created),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// seedProfile ensures the default admin profile exists
func (s *Seeder) seedProfile(ctx context.Context) (*profiles.Profile, error) {
	db := s.DBManager.GetConnection()

	profile, err := profiles.FindByEmail(ctx, db, DefaultAdminEmail)
	if err == nil {
		s.Logger.Info("Admin profile already exists", slog.String("email", profile.Email))
		return profile, nil
	}
	if !errors.Is(err, profiles.ErrProfileNotFound) {
		return nil, fmt.Errorf("failed to check for existing profile: %w", err)
	}

	s.Logger.Info("Creating admin profile")
	return profiles.Create(ctx, db, s.Logger, DefaultAdminEmail, DefaultAdminPassword, profiles.RoleAdmin)
}

// seedVisits simulates VisitCount visits spread over the last Days days and
// returns how many completed.
func (s *Seeder) seedVisits(ctx context.Context) (int, error) {
	repo := events.NewRepository(s.DBManager, s.Logger, s.BounceMode)
	ipPool := generateIPPool(s.rand, max(10, s.VisitCount/3))
	userAgents := getUserAgents()
	referrers := getReferrers()
	journeys := getJourneys()
	locator := newPoolLocator(s.rand)
	window := time.Duration(max(s.Days, 1)) * 24 * time.Hour

	completed := 0
	for i := 0; i < s.VisitCount; i++ {
		if ctx.Err() != nil {
			return completed, ctx.Err()
		}

		journey := journeys[s.rand.IntN(len(journeys))]
		clock := &stepClock{now: time.Now().Add(-time.Duration(s.rand.Int64N(int64(window))))}
		env := collector.Environment{
			URL:       addUTMParams(s.rand, defaultSiteURL+journey[0]),
			Title:     "Vitrine",
			Referrer:  referrers[s.rand.IntN(len(referrers))],
			UserAgent: userAgents[s.rand.IntN(len(userAgents))],
			IP:        ipPool[s.rand.IntN(len(ipPool))],
			Screen:    device.Screen{Width: 1440, Height: 900, ViewportWidth: 1440, ViewportHeight: 780},
		}

		tracker, err := collector.New(collector.Options{
			Storage:     collector.NewMemoryStorage(),
			Sink:        repo,
			Locator:     locator,
			Logger:      s.Logger,
			Clock:       clock.Now,
			Environment: env,
		})
		if err != nil {
			return completed, err
		}

		for pageIndex, path := range journey {
			if pageIndex > 0 {
				clock.advance(time.Duration(s.rand.IntN(110)+10) * time.Second)
				env.Referrer = defaultSiteURL + journey[pageIndex-1]
				env.URL = defaultSiteURL + path
				tracker.Navigate(env)
			}
			tracker.TrackPageView(ctx, pageIndex == 0)
			tracker.RecordNavigationTiming(ctx, collector.NavigationTiming{
				LoadTime:             float64(800 + s.rand.IntN(2400)),
				DOMContentLoaded:     float64(400 + s.rand.IntN(900)),
				FirstContentfulPaint: float64(300 + s.rand.IntN(1200)),
			})
			tracker.RecordMetric(ctx, collector.MetricLCP, float64(1200+s.rand.IntN(2500)))
			tracker.RecordMetric(ctx, collector.MetricCLS, s.rand.Float64()*0.25)
		}

		if s.rand.Float64() < 0.3 {
			clock.advance(time.Duration(s.rand.IntN(240)+30) * time.Second)
			completedForm := s.rand.Float64() < 0.5
			fc := collector.FormConversion{
				FormType:  []string{"offerte", "contact", "inmeten"}[s.rand.IntN(3)],
				Completed: completedForm,
				StartedAt: clock.now.Add(-time.Duration(s.rand.IntN(180)+20) * time.Second),
				Funnel:    map[string]any{"steps": len(journey)},
			}
			if !completedForm {
				fc.AbandonedAtStep = []string{"maten", "kleur", "contact"}[s.rand.IntN(3)]
			}
			tracker.TrackFormConversion(ctx, fc)
		}

		tracker.Close()
		completed++
	}

	s.Logger.Info("Generated visits", slog.Int("count", completed))
	return completed, nil
}

// seedLeads inserts count leads with a realistic status mix.
func (s *Seeder) seedLeads(ctx context.Context, count int) (int, error) {
	statuses := []string{
		leads.StatusNew, leads.StatusNew, leads.StatusNew,
		leads.StatusInProgress, leads.StatusContacted, leads.StatusQuoteSent,
		leads.StatusConverted, leads.StatusNoInterest, leads.StatusRejected,
	}
	window := time.Duration(max(s.Days, 1)) * 24 * time.Hour

	rows := make([]leads.Lead, 0, count)
	for i := 0; i < count; i++ {
		rows = append(rows, leads.Lead{
			Name:      fmt.Sprintf("Lead %d", i+1),
			Email:     fmt.Sprintf("lead%d@example.nl", i+1),
			Status:    statuses[s.rand.IntN(len(statuses))],
			CreatedAt: time.Now().UTC().Add(-time.Duration(s.rand.Int64N(int64(window)))),
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	db := s.DBManager.GetConnection().WithContext(ctx)
	err := sqlite.PerformWrite(s.Logger, db, func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, 100).Error
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time { return c.now }

func (c *stepClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// poolLocator answers lookups from a fixed set of locations without any
// network access. One visit in ten gets the estimated default location.
type poolLocator struct {
	rand      *rand.Rand
	locations []geolocation.Location
}

func newPoolLocator(r *rand.Rand) *poolLocator {
	return &poolLocator{
		rand: r,
		locations: []geolocation.Location{
			{CountryCode: "NL", Country: "Netherlands", Region: "Noord-Holland", City: "Amsterdam", Timezone: "Europe/Amsterdam", Source: geolocation.SourceGeoLite},
			{CountryCode: "NL", Country: "Netherlands", Region: "Zuid-Holland", City: "Rotterdam", Timezone: "Europe/Amsterdam", Source: geolocation.SourceGeoLite},
			{CountryCode: "NL", Country: "Netherlands", Region: "Utrecht", City: "Utrecht", Timezone: "Europe/Amsterdam", Source: geolocation.SourcePrimary},
			{CountryCode: "BE", Country: "Belgium", Region: "Antwerpen", City: "Antwerp", Timezone: "Europe/Brussels", Source: geolocation.SourcePrimary},
			{CountryCode: "DE", Country: "Germany", Region: "Nordrhein-Westfalen", City: "Düsseldorf", Timezone: "Europe/Berlin", Source: geolocation.SourceFallback},
		},
	}
}

func (l *poolLocator) Lookup(_ context.Context, _ string) geolocation.Location {
	if l.rand.IntN(10) == 0 {
		return geolocation.Default()
	}
	return l.locations[l.rand.IntN(len(l.locations))]
}

// generateIPPool creates a pool of unique IPv4 addresses
func generateIPPool(r *rand.Rand, count int) []string {
	seen := make(map[string]bool, count)
	ips := make([]string, 0, count)
	for len(ips) < count {
		ip := fmt.Sprintf("%d.%d.%d.%d", r.IntN(223)+1, r.IntN(256), r.IntN(256), r.IntN(254)+1)
		if !seen[ip] {
			seen[ip] = true
			ips = append(ips, ip)
		}
	}
	return ips
}

// getUserAgents returns a list of common user agent strings
func getUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
		"Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	}
}

// getReferrers returns entry referrers; empty is a direct visit.
func getReferrers() []string {
	return []string{
		"",
		"",
		"https://www.google.com/",
		"https://www.google.nl/search?q=kunststof+kozijnen",
		"https://www.facebook.com/",
		"https://www.instagram.com/",
		"https://www.linkedin.com/",
		"https://www.youtube.com/",
		"https://www.werkspot.nl/kozijnen",
	}
}

func getJourneys() [][]string {
	return [][]string{
		{"/"},
		{"/", "/kozijnen"},
		{"/", "/kozijnen", "/kozijnen/kunststof", "/offerte"},
		{"/deuren", "/deuren/voordeuren", "/offerte"},
		{"/", "/schuifpuien", "/contact"},
		{"/kozijnen/aluminium"},
		{"/", "/over-ons", "/showroom", "/contact"},
		{"/", "/deuren", "/kozijnen", "/offerte", "/bedankt"},
	}
}

// addUTMParams adds UTM tracking parameters to one in five entry URLs.
func addUTMParams(r *rand.Rand, rawURL string) string {
	if r.IntN(10) < 8 {
		return rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	params := u.Query()
	params.Set("utm_source", []string{"google", "facebook", "nieuwsbrief", "instagram"}[r.IntN(4)])
	params.Set("utm_medium", []string{"cpc", "social", "email"}[r.IntN(3)])
	params.Set("utm_campaign", []string{"voorjaarsactie", "isolatieglas", "open_dag"}[r.IntN(3)])
	u.RawQuery = params.Encode()
	return u.String()
}
