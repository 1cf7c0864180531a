package geolocation

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/oschwald/geoip2-golang"
)

// GeoLite resolves addresses from a local MaxMind City database.
type GeoLite struct {
	db *geoip2.Reader
}

// OpenGeoLite opens the database at path. It returns nil when path is empty
// or the file does not exist; the database is optional.
func OpenGeoLite(path string, logger *slog.Logger) *GeoLite {
	if path == "" {
		logger.Debug("GeoLite database path not configured")
		return nil
	}

	if _, err := os.Stat(path); err != nil {
		logger.Info("GeoLite database not found, skipping local lookups",
			slog.String("path", path),
			slog.Any("error", err))
		return nil
	}

	db, err := geoip2.Open(path)
	if err != nil {
		logger.Error("Failed to open GeoLite database",
			slog.String("path", path),
			slog.Any("error", err))
		return nil
	}

	logger.Info("GeoLite database opened", slog.String("path", path))
	return &GeoLite{db: db}
}

func (g *GeoLite) Name() string { return SourceGeoLite }

func (g *GeoLite) Lookup(_ context.Context, ip string) (Location, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Location{}, fmt.Errorf("%w: geolite: invalid ip %q", ErrLookupFailed, ip)
	}

	record, err := g.db.City(parsed)
	if err != nil {
		return Location{}, fmt.Errorf("%w: geolite: %v", ErrLookupFailed, err)
	}
	if record.Country.IsoCode == "" {
		return Location{}, fmt.Errorf("%w: geolite: no record for %s", ErrLookupFailed, ip)
	}

	loc := Location{
		CountryCode: record.Country.IsoCode,
		Country:     record.Country.Names["en"],
		City:        record.City.Names["en"],
		PostalCode:  record.Postal.Code,
		Latitude:    record.Location.Latitude,
		Longitude:   record.Location.Longitude,
		Timezone:    record.Location.TimeZone,
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].Names["en"]
	}
	if asn, err := g.db.ASN(parsed); err == nil && asn.AutonomousSystemNumber > 0 {
		loc.ASN = "AS" + strconv.FormatUint(uint64(asn.AutonomousSystemNumber), 10)
		loc.Organization = asn.AutonomousSystemOrganization
	}
	return loc, nil
}

// Close releases the database.
func (g *GeoLite) Close() error {
	return g.db.Close()
}
