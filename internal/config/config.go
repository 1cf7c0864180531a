// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// BounceMode selects how sessions are flagged as bounced.
type BounceMode string

const (
	// BounceFirstView freezes the flag at the first page view of a session.
	BounceFirstView BounceMode = "first_view"
	// BounceSessionEnd recomputes the flag on every page view and when the
	// session is finalized after inactivity.
	BounceSessionEnd BounceMode = "session_end"
)

const defaultJWTSecret = "88888888888888888888888888888888"

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName               string   `mapstructure:"appname"`
	AppPort               string   `mapstructure:"appport"`
	Environment           string   `mapstructure:"environment"`
	LogLevel              LogLevel `mapstructure:"loglevel"`
	Timezone              string   `mapstructure:"timezone"`
	PublicDirectory       string   `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string   `mapstructure:"publicassetsurlprefix"`

	// Auth settings
	JWTSecret       string `mapstructure:"jwtsecret"`
	TokenTTLSeconds int    `mapstructure:"tokenttlseconds"`
	TokenIssuer     string `mapstructure:"tokenissuer"`

	// Analytics settings
	BounceMode            BounceMode `mapstructure:"bouncemode"`
	SessionTimeoutSeconds int        `mapstructure:"sessiontimeoutseconds"`

	// Geolocation settings
	GeoDBPath          string `mapstructure:"geodbpath"`
	GeoPrimaryURL      string `mapstructure:"geoprimaryurl"`
	GeoFallbackURL     string `mapstructure:"geofallbackurl"`
	GeoTimeoutMillis   int    `mapstructure:"geotimeoutmillis"`
	GeoCacheSize       int    `mapstructure:"geocachesize"`
	GeoCacheTTLSeconds int    `mapstructure:"geocachettlseconds"`

	// File paths
	DatabasePath string `mapstructure:"storagepath"`
	DatabaseName string `mapstructure:"-"` // Derived from other settings

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseMaxOpenConns int `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int `mapstructure:"dbmaxidleconns"`

	// Job scheduling settings
	JobIntervalSeconds int `mapstructure:"jobintervalseconds"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "vitrine")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("timezone", "Europe/Amsterdam")
		v.SetDefault("publicdir", "web/dist")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("jwtsecret", defaultJWTSecret)
		v.SetDefault("tokenttlseconds", 86400)
		v.SetDefault("tokenissuer", "vitrine")
		v.SetDefault("bouncemode", string(BounceFirstView))
		v.SetDefault("sessiontimeoutseconds", 1800)
		v.SetDefault("geodbpath", "")
		v.SetDefault("geoprimaryurl", "https://ipapi.co")
		v.SetDefault("geofallbackurl", "https://ipwho.is")
		v.SetDefault("geotimeoutmillis", 3000)
		v.SetDefault("geocachesize", 4096)
		v.SetDefault("geocachettlseconds", 3600)
		v.SetDefault("storagepath", "storage")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("jobintervalseconds", 60)

		v.BindEnv("appname", "VITRINE_APP_NAME")
		v.BindEnv("appport", "VITRINE_APP_PORT")
		v.BindEnv("environment", "VITRINE_ENV")
		v.BindEnv("loglevel", "VITRINE_LOG_LEVEL")
		v.BindEnv("timezone", "VITRINE_TIMEZONE")
		v.BindEnv("publicdir", "VITRINE_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "VITRINE_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("jwtsecret", "VITRINE_JWT_SECRET")
		v.BindEnv("tokenttlseconds", "VITRINE_TOKEN_TTL_SECONDS")
		v.BindEnv("tokenissuer", "VITRINE_TOKEN_ISSUER")
		v.BindEnv("bouncemode", "VITRINE_BOUNCE_MODE")
		v.BindEnv("sessiontimeoutseconds", "VITRINE_SESSION_TIMEOUT_SECONDS")
		v.BindEnv("geodbpath", "VITRINE_GEO_DB_PATH")
		v.BindEnv("geoprimaryurl", "VITRINE_GEO_PRIMARY_URL")
		v.BindEnv("geofallbackurl", "VITRINE_GEO_FALLBACK_URL")
		v.BindEnv("geotimeoutmillis", "VITRINE_GEO_TIMEOUT_MILLIS")
		v.BindEnv("geocachesize", "VITRINE_GEO_CACHE_SIZE")
		v.BindEnv("geocachettlseconds", "VITRINE_GEO_CACHE_TTL_SECONDS")
		v.BindEnv("storagepath", "VITRINE_STORAGE_PATH")
		v.BindEnv("logsdir", "VITRINE_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "VITRINE_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "VITRINE_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "VITRINE_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbmaxopenconns", "VITRINE_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "VITRINE_DB_MAX_IDLE_CONNS")
		v.BindEnv("jobintervalseconds", "VITRINE_JOB_INTERVAL_SECONDS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()

		if cfg.JWTSecret == "" {
			log.Fatal("JWT secret is required")
		}
		if cfg.IsProduction() && cfg.JWTSecret == defaultJWTSecret {
			log.Fatal("Production requires a unique VITRINE_JWT_SECRET (cannot use default)")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	switch c.BounceMode {
	case BounceFirstView, BounceSessionEnd:
	default:
		return fmt.Errorf("invalid bounce mode: %s", c.BounceMode)
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// Location returns the timezone used to resolve report ranges.
// validate guarantees the name loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TokenTTL returns how long issued admin tokens stay valid.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLSeconds) * time.Second
}

// SessionTimeout returns the inactivity window after which a visitor
// session is considered finished.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSeconds) * time.Second
}

// GeoTimeout returns the HTTP timeout for geolocation providers.
func (c *Config) GeoTimeout() time.Duration {
	return time.Duration(c.GeoTimeoutMillis) * time.Millisecond
}

// GeoCacheTTL returns how long resolved locations stay cached.
func (c *Config) GeoCacheTTL() time.Duration {
	return time.Duration(c.GeoCacheTTLSeconds) * time.Second
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the signing key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.JWTSecret
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1
// - Development/Production: 10 (the aggregation loads datasets in parallel)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
