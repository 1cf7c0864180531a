package geolocation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"vitrine/internal/metrics"
)

// Format selects how a provider's response body is read.
type Format int

const (
	// FormatIPAPI reads ipapi.co style bodies from GET {base}/{ip}/json/.
	FormatIPAPI Format = iota
	// FormatIPWhois reads ipwho.is style bodies from GET {base}/{ip}.
	FormatIPWhois
)

// HTTPProvider queries a JSON IP-lookup service behind a circuit breaker.
type HTTPProvider struct {
	name    string
	baseURL string
	format  Format
	client  *http.Client
	cb      *gobreaker.CircuitBreaker[Location]
}

// NewHTTPProvider builds a provider. A zero timeout means 3 seconds.
func NewHTTPProvider(name, baseURL string, format Format, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[Location](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		// Open after five consecutive failures.
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &HTTPProvider{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		format:  format,
		client:  &http.Client{Timeout: timeout},
		cb:      cb,
	}
}

func (p *HTTPProvider) Name() string { return p.name }

// Lookup resolves ip. An empty ip asks the service for the caller's own
// address.
func (p *HTTPProvider) Lookup(ctx context.Context, ip string) (Location, error) {
	loc, err := p.cb.Execute(func() (Location, error) {
		return p.fetch(ctx, ip)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Location{}, fmt.Errorf("%w: %s: %v", ErrLookupFailed, p.name, err)
		}
		return Location{}, err
	}
	return loc, nil
}

func (p *HTTPProvider) endpoint(ip string) string {
	escaped := url.PathEscape(ip)
	switch p.format {
	case FormatIPWhois:
		return p.baseURL + "/" + escaped
	default:
		if ip == "" {
			return p.baseURL + "/json/"
		}
		return p.baseURL + "/" + escaped + "/json/"
	}
}

func (p *HTTPProvider) fetch(ctx context.Context, ip string) (Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(ip), nil)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %s: %v", ErrLookupFailed, p.name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %s: %v", ErrLookupFailed, p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return Location{}, fmt.Errorf("%w: %s: status %d", ErrLookupFailed, p.name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Location{}, fmt.Errorf("%w: %s: read body: %v", ErrLookupFailed, p.name, err)
	}

	var loc Location
	switch p.format {
	case FormatIPWhois:
		loc, err = decodeIPWhois(body)
	default:
		loc, err = decodeIPAPI(body)
	}
	if err != nil {
		return Location{}, fmt.Errorf("%w: %s: %v", ErrLookupFailed, p.name, err)
	}
	return loc, nil
}

type ipapiResponse struct {
	Error       bool    `json:"error"`
	Reason      string  `json:"reason"`
	City        string  `json:"city"`
	Region      string  `json:"region"`
	CountryCode string  `json:"country_code"`
	CountryName string  `json:"country_name"`
	Postal      string  `json:"postal"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Timezone    string  `json:"timezone"`
	Org         string  `json:"org"`
	ASN         string  `json:"asn"`
}

func decodeIPAPI(body []byte) (Location, error) {
	var r ipapiResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return Location{}, fmt.Errorf("decode: %v", err)
	}
	if r.Error {
		return Location{}, fmt.Errorf("provider error: %s", r.Reason)
	}
	if r.CountryCode == "" {
		return Location{}, errors.New("response has no country")
	}
	return Location{
		CountryCode:  strings.ToUpper(r.CountryCode),
		Country:      r.CountryName,
		Region:       r.Region,
		City:         r.City,
		PostalCode:   r.Postal,
		Latitude:     r.Latitude,
		Longitude:    r.Longitude,
		Timezone:     r.Timezone,
		ISP:          r.Org,
		Organization: r.Org,
		ASN:          r.ASN,
	}, nil
}

type ipwhoisResponse struct {
	Success     bool    `json:"success"`
	Message     string  `json:"message"`
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	Region      string  `json:"region"`
	City        string  `json:"city"`
	Postal      string  `json:"postal"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Timezone    struct {
		ID string `json:"id"`
	} `json:"timezone"`
	Connection struct {
		ASN int    `json:"asn"`
		Org string `json:"org"`
		ISP string `json:"isp"`
	} `json:"connection"`
}

func decodeIPWhois(body []byte) (Location, error) {
	var r ipwhoisResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return Location{}, fmt.Errorf("decode: %v", err)
	}
	if !r.Success {
		return Location{}, fmt.Errorf("provider error: %s", r.Message)
	}

	asn := ""
	if r.Connection.ASN > 0 {
		asn = "AS" + strconv.Itoa(r.Connection.ASN)
	}
	return Location{
		CountryCode:  strings.ToUpper(r.CountryCode),
		Country:      r.Country,
		Region:       r.Region,
		City:         r.City,
		PostalCode:   r.Postal,
		Latitude:     r.Latitude,
		Longitude:    r.Longitude,
		Timezone:     r.Timezone.ID,
		ISP:          r.Connection.ISP,
		Organization: r.Connection.Org,
		ASN:          asn,
	}, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
