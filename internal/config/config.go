package config

import (
	"time"
)

// Config is the decoded application configuration. Precedence, lowest
// first: defaults, config file, environment, flags.
type Config struct {
	Cache    CacheConfig    `mapstructure:"cache"`
	GitHub   GitHubConfig   `mapstructure:"github"`
	NPM      NPMConfig      `mapstructure:"npm"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Dataset  DatasetConfig  `mapstructure:"dataset"`
	Manifest ManifestConfig `mapstructure:"manifest"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Workers  int            `mapstructure:"workers"`

	// RateLimits overrides requests per minute by host.
	RateLimits      map[string]int `mapstructure:"rate_limits"`
	RateLimitMargin float64        `mapstructure:"rate_limit_margin"`
}

// CacheConfig locates the response cache.
type CacheConfig struct {
	Dir string `mapstructure:"dir"`
}

// GitHubConfig configures the GitHub REST API client.
type GitHubConfig struct {
	Token   string `mapstructure:"token"`
	BaseURL string `mapstructure:"base_url"`
}

// NPMConfig configures the npm registry and downloads API.
type NPMConfig struct {
	RegistryURL string `mapstructure:"registry_url"`
	APIURL      string `mapstructure:"api_url"`
}

// FetchConfig bounds individual requests.
type FetchConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Timeout     time.Duration `mapstructure:"timeout"`
	UserAgent   string        `mapstructure:"user_agent"`
}

// DatasetConfig controls collection windows and output.
type DatasetConfig struct {
	// Start is the earliest day a download series may begin.
	Start     time.Time `mapstructure:"start"`
	OutputDir string    `mapstructure:"output_dir"`
}

// ManifestConfig locates the package manifest.
type ManifestConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig contains dataset preview server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `mapstructure:"level"`
	// Profile is SIMPLE for commands or STRUCTURED for the server.
	Profile     string `mapstructure:"profile"`
	Environment string `mapstructure:"environment"`
}

// MetricsConfig contains Prometheus exporter settings.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}
