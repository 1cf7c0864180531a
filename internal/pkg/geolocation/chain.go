package geolocation

import (
	"context"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"vitrine/internal/config"
	"vitrine/internal/metrics"
)

// Chain tries providers in order and substitutes Default when all fail.
type Chain struct {
	providers []Provider
	cache     *lru.LRU[string, Location]
	logger    *slog.Logger
}

// ChainOptions configures a Chain. CacheSize 0 disables the cache.
type ChainOptions struct {
	Providers []Provider
	CacheSize int
	CacheTTL  time.Duration
	Logger    *slog.Logger
}

// NewChain builds a chain over the given providers.
func NewChain(opts ChainOptions) *Chain {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Chain{logger: logger}
	for _, p := range opts.Providers {
		if p != nil {
			c.providers = append(c.providers, p)
		}
	}
	if opts.CacheSize > 0 {
		c.cache = lru.NewLRU[string, Location](opts.CacheSize, nil, opts.CacheTTL)
	}
	return c
}

// NewChainFromConfig wires the GeoLite database when present, then the
// primary and fallback HTTP services.
func NewChainFromConfig(cfg *config.Config, logger *slog.Logger) *Chain {
	var providers []Provider
	if geolite := OpenGeoLite(cfg.GeoDBPath, logger); geolite != nil {
		providers = append(providers, geolite)
	}
	if cfg.GeoPrimaryURL != "" {
		providers = append(providers, NewHTTPProvider(SourcePrimary, cfg.GeoPrimaryURL, FormatIPAPI, cfg.GeoTimeout()))
	}
	if cfg.GeoFallbackURL != "" {
		providers = append(providers, NewHTTPProvider(SourceFallback, cfg.GeoFallbackURL, FormatIPWhois, cfg.GeoTimeout()))
	}

	return NewChain(ChainOptions{
		Providers: providers,
		CacheSize: cfg.GeoCacheSize,
		CacheTTL:  cfg.GeoCacheTTL(),
		Logger:    logger,
	})
}

// Lookup never fails. Only real answers are cached, keyed by ip; the
// caller's own address (empty ip) is never cached.
func (c *Chain) Lookup(ctx context.Context, ip string) Location {
	if c.cache != nil && ip != "" {
		if loc, ok := c.cache.Get(ip); ok {
			metrics.RecordGeoLookup(SourceCache)
			loc.Source = SourceCache
			return loc
		}
	}

	for _, p := range c.providers {
		loc, err := p.Lookup(ctx, ip)
		if err != nil {
			c.logger.Debug("Geolocation provider failed",
				slog.String("provider", p.Name()),
				slog.String("ip", ip),
				slog.Any("error", err))
			continue
		}

		loc.Source = p.Name()
		loc.Estimated = false
		metrics.RecordGeoLookup(loc.Source)
		if c.cache != nil && ip != "" {
			c.cache.Add(ip, loc)
		}
		return loc
	}

	c.logger.Debug("All geolocation providers failed, using default location", slog.String("ip", ip))
	metrics.RecordGeoLookup(SourceDefault)
	return Default()
}
