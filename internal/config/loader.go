// Package config loads ossanalytics configuration through viper, with
// identity-aware environment overrides and XDG default paths from gofulmen.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/pathfinder"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/ossanalytics/ossanalytics/internal/appid"
)

var (
	appConfig   *Config
	configMu    sync.RWMutex
	appIdentity *appidentity.Identity
)

// EnvVarSpec maps {PREFIX}{NAME} environment variables to config paths.
type EnvVarSpec = gfconfig.EnvVarSpec

const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// GitHubTokenEnv is honoured when github.token is not configured.
const GitHubTokenEnv = "GITHUB_TOKEN"

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("cache.dir", DefaultCacheDir())

	v.SetDefault("github.token", "")
	v.SetDefault("github.base_url", "https://api.github.com")
	v.SetDefault("npm.registry_url", "https://registry.npmjs.org")
	v.SetDefault("npm.api_url", "https://api.npmjs.org")

	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.timeout", "60s")
	v.SetDefault("fetch.user_agent", appid.DefaultName)

	v.SetDefault("dataset.start", "2021-01-01")
	v.SetDefault("dataset.output_dir", "data")
	v.SetDefault("manifest.path", "packages.yaml")

	v.SetDefault("rate_limits", map[string]int{})
	v.SetDefault("rate_limit_margin", 0.9)
	v.SetDefault("workers", 4)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")
	v.SetDefault("logging.environment", "production")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
}

// Load decodes the settings held by v into a Config. Environment overrides
// named after the app identity are merged first.
func Load(ctx context.Context, v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}
	if appIdentity == nil {
		identity, err := appid.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load app identity: %w", err)
		}
		appIdentity = identity
	}

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	if value := strings.TrimSpace(os.Getenv(appid.EnvPrefix(appIdentity) + "RATE_LIMIT_MARGIN")); value != "" {
		margin, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid rate limit margin: %w", err)
		}
		envOverrides["rate_limit_margin"] = margin
	}
	if len(envOverrides) > 0 {
		if err := v.MergeConfigMap(envOverrides); err != nil {
			return nil, fmt.Errorf("failed to merge environment overrides: %w", err)
		}
	}

	// AllSettings splits keys on dots, which mangles the host names used as
	// rate_limits keys; decode that section from the raw value instead.
	settings := v.AllSettings()
	delete(settings, "rate_limits")
	cfg, err := Decode(settings)
	if err != nil {
		return nil, err
	}
	limits, err := decodeRateLimits(v.Get("rate_limits"))
	if err != nil {
		return nil, err
	}
	cfg.RateLimits = limits

	if strings.TrimSpace(cfg.GitHub.Token) == "" {
		cfg.GitHub.Token = strings.TrimSpace(os.Getenv(GitHubTokenEnv))
	}
	if strings.TrimSpace(cfg.Cache.Dir) == "" {
		cfg.Cache.Dir = DefaultCacheDir()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// Decode converts a settings map into a Config.
func Decode(settings map[string]any) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.DateOnly),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

func decodeRateLimits(raw any) (map[string]int, error) {
	limits := map[string]int{}
	if raw == nil {
		return limits, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &limits,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode rate_limits: %w", err)
	}
	return limits, nil
}

// Validate rejects settings the collector cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Fetch.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("fetch.max_attempts must be at least 1, got %d", c.Fetch.MaxAttempts))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.RateLimitMargin < 0 || c.RateLimitMargin > 1 {
		errs = append(errs, fmt.Errorf("rate_limit_margin must be within [0, 1], got %v", c.RateLimitMargin))
	}
	for host, limit := range c.RateLimits {
		if limit <= 0 {
			errs = append(errs, fmt.Errorf("rate_limits.%s must be positive, got %d", host, limit))
		}
	}
	for key, raw := range map[string]string{
		"github.base_url":  c.GitHub.BaseURL,
		"npm.registry_url": c.NPM.RegistryURL,
		"npm.api_url":      c.NPM.APIURL,
	} {
		if !strings.HasPrefix(raw, "https://") {
			errs = append(errs, fmt.Errorf("%s must be an https URL, got %q", key, raw))
		}
	}
	return errors.Join(errs...)
}

// GetConfig returns the most recently loaded configuration.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

func getEnvSpecs() []EnvVarSpec {
	prefix := appid.EnvPrefix(appIdentity)

	return []EnvVarSpec{
		{Name: prefix + "CACHE_DIR", Path: []string{"cache", "dir"}, Type: EnvString},

		{Name: prefix + "GITHUB_TOKEN", Path: []string{"github", "token"}, Type: EnvString},
		{Name: prefix + "GITHUB_BASE_URL", Path: []string{"github", "base_url"}, Type: EnvString},
		{Name: prefix + "NPM_REGISTRY_URL", Path: []string{"npm", "registry_url"}, Type: EnvString},
		{Name: prefix + "NPM_API_URL", Path: []string{"npm", "api_url"}, Type: EnvString},

		// Durations stay strings until the decode hook runs.
		{Name: prefix + "FETCH_MAX_ATTEMPTS", Path: []string{"fetch", "max_attempts"}, Type: EnvInt},
		{Name: prefix + "FETCH_TIMEOUT", Path: []string{"fetch", "timeout"}, Type: EnvString},

		{Name: prefix + "DATASET_START", Path: []string{"dataset", "start"}, Type: EnvString},
		{Name: prefix + "DATASET_OUTPUT_DIR", Path: []string{"dataset", "output_dir"}, Type: EnvString},
		{Name: prefix + "MANIFEST_PATH", Path: []string{"manifest", "path"}, Type: EnvString},
		{Name: prefix + "WORKERS", Path: []string{"workers"}, Type: EnvInt},

		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},

		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},
	}
}

// DefaultConfigPath returns the XDG path of the user config file.
func DefaultConfigPath() string {
	dir := gfconfig.GetAppConfigDir(appid.ConfigName(appIdentity))
	if strings.TrimSpace(dir) == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// DefaultCacheDir returns the XDG response cache directory.
func DefaultCacheDir() string {
	dir := gfconfig.GetAppCacheDir(appid.ConfigName(appIdentity))
	if strings.TrimSpace(dir) == "" {
		return filepath.Join(".cache", appid.DefaultName)
	}
	return filepath.Join(dir, "responses")
}

// ResolvePath returns path unchanged when it exists or is absolute,
// otherwise the same relative path under the project root if that exists.
func ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	root, err := findProjectRoot()
	if err != nil {
		return path
	}
	candidate := filepath.Join(root, path)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return path
}

// findProjectRoot walks up from the working directory to a repository marker.
func findProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	root, err := pathfinder.FindRepositoryRoot(cwd, []string{"packages.yaml", "go.mod", ".git"}, pathfinder.WithMaxDepth(10))
	if err != nil {
		return "", fmt.Errorf("project root not found: %w", err)
	}
	return root, nil
}
