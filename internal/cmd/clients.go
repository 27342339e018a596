package cmd

import (
	"net/http"

	"github.com/ossanalytics/ossanalytics/internal/config"
	"github.com/ossanalytics/ossanalytics/internal/core/cache"
	"github.com/ossanalytics/ossanalytics/internal/core/engine"
	"github.com/ossanalytics/ossanalytics/internal/core/fetch"
	"github.com/ossanalytics/ossanalytics/internal/core/github"
	"github.com/ossanalytics/ossanalytics/internal/core/npm"
	apperrors "github.com/ossanalytics/ossanalytics/internal/errors"
	"github.com/ossanalytics/ossanalytics/internal/observability"
)

func loadedConfig() (*config.Config, error) {
	cfg := config.GetConfig()
	if cfg == nil {
		return nil, apperrors.NewConfigInvalidError("configuration has not been loaded")
	}
	return cfg, nil
}

func openCache(cfg *config.Config) (*cache.FileStore, error) {
	return cache.NewFileStore(cfg.Cache.Dir)
}

// newFetchClient wires the cache, the shared request budget and the HTTP
// client. useCache=false bypasses reads and writes of cached responses.
func newFetchClient(cfg *config.Config, useCache bool) (*fetch.Client, error) {
	limiter := &engine.RateLimiter{}
	limiter.ApplyOverrides(cfg.RateLimits)
	limiter.ApplySafetyMargin(cfg.RateLimitMargin)

	client := &fetch.Client{
		HTTP:        &http.Client{Timeout: cfg.Fetch.Timeout},
		Limiter:     limiter,
		Logger:      observability.CLILogger,
		MaxAttempts: cfg.Fetch.MaxAttempts,
		UserAgent:   cfg.Fetch.UserAgent,
	}
	if useCache {
		store, err := openCache(cfg)
		if err != nil {
			return nil, err
		}
		client.Cache = store
	}
	return client, nil
}

func newNPMClient(cfg *config.Config, client *fetch.Client) *npm.Client {
	return &npm.Client{
		Fetcher:     client,
		RegistryURL: cfg.NPM.RegistryURL,
		APIURL:      cfg.NPM.APIURL,
	}
}

func newCollector(cfg *config.Config, client *fetch.Client, workers int) *engine.Collector {
	if workers <= 0 {
		workers = cfg.Workers
	}
	return &engine.Collector{
		Repos: &github.Client{
			Fetcher: client,
			BaseURL: cfg.GitHub.BaseURL,
			Token:   cfg.GitHub.Token,
		},
		Registry:    newNPMClient(cfg, client),
		Workers:     workers,
		Start:       cfg.Dataset.Start,
		Logger:      observability.CLILogger,
		ToolVersion: versionInfo.Version,
	}
}
