// Package geolocation resolves an IP address to an approximate location
// through an ordered chain of providers that ends in a fixed default.
package geolocation

import (
	"context"
	"errors"
)

// Sources recorded on a Location.
const (
	SourceCache    = "cache"
	SourceGeoLite  = "geolite"
	SourcePrimary  = "primary"
	SourceFallback = "fallback"
	SourceDefault  = "default"
)

// ErrLookupFailed is returned by providers that could not resolve an address.
var ErrLookupFailed = errors.New("geolocation lookup failed")

// Location is the resolved position of an IP address.
type Location struct {
	CountryCode  string  `json:"country_code"`
	Country      string  `json:"country"`
	Region       string  `json:"region"`
	City         string  `json:"city"`
	PostalCode   string  `json:"postal_code"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Timezone     string  `json:"timezone"`
	ISP          string  `json:"isp"`
	Organization string  `json:"organization"`
	ASN          string  `json:"asn"`
	Source       string  `json:"source"`
	Estimated    bool    `json:"estimated"`
}

// Default is substituted when every provider fails.
func Default() Location {
	return Location{
		CountryCode: "NL",
		Country:     "Netherlands",
		Region:      "Noord-Holland",
		City:        "Amsterdam",
		PostalCode:  "1012",
		Latitude:    52.3676,
		Longitude:   4.9041,
		Timezone:    "Europe/Amsterdam",
		Source:      SourceDefault,
		Estimated:   true,
	}
}

// Provider resolves one address. Implementations return an error wrapping
// ErrLookupFailed when they have no answer.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, ip string) (Location, error)
}
