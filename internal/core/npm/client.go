// Package npm reads package metadata and download counts from the npm
// registry and downloads API.
package npm

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/ossanalytics/ossanalytics/internal/core"
	"github.com/ossanalytics/ossanalytics/internal/core/fetch"
)

const (
	DefaultRegistryURL = "https://registry.npmjs.org"
	DefaultAPIURL      = "https://api.npmjs.org"
)

// Requester performs a cached GET; *fetch.Client satisfies it.
type Requester interface {
	Request(ctx context.Context, rawURL string, opts fetch.Options) (*fetch.Response, error)
}

// Client talks to the npm registry and downloads API.
type Client struct {
	Fetcher     Requester
	RegistryURL string
	APIURL      string
}

// Package fetches the registry document for pkg.
func (c *Client) Package(ctx context.Context, pkg string) (*core.RegistryPackage, error) {
	if err := c.validate(pkg); err != nil {
		return nil, err
	}
	resp, err := c.Fetcher.Request(ctx, c.registryURL()+"/"+escapeName(pkg), fetch.Options{})
	if err != nil {
		return nil, err
	}
	var doc core.RegistryPackage
	if err := resp.Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DownloadsByVersion returns last-week downloads keyed by version.
func (c *Client) DownloadsByVersion(ctx context.Context, pkg string) (map[string]int64, error) {
	if err := c.validate(pkg); err != nil {
		return nil, err
	}
	resp, err := c.Fetcher.Request(ctx, c.apiURL()+"/versions/"+url.PathEscape(pkg)+"/last-week", fetch.Options{})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Downloads map[string]int64 `json:"downloads"`
	}
	if err := resp.Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Downloads == nil {
		payload.Downloads = map[string]int64{}
	}
	return payload.Downloads, nil
}

// Versions lists released (non-prerelease) versions oldest first, with
// their last-week downloads.
func (c *Client) Versions(ctx context.Context, pkg string) ([]core.VersionInfo, error) {
	doc, err := c.Package(ctx, pkg)
	if err != nil {
		return nil, err
	}
	downloads, err := c.DownloadsByVersion(ctx, pkg)
	if err != nil {
		return nil, err
	}
	return doc.Released(downloads), nil
}

func (c *Client) validate(pkg string) error {
	if c == nil || c.Fetcher == nil {
		return errors.New("npm client is not configured")
	}
	if strings.TrimSpace(pkg) == "" {
		return errors.New("package name is required")
	}
	return nil
}

func (c *Client) registryURL() string {
	if c.RegistryURL != "" {
		return strings.TrimRight(c.RegistryURL, "/")
	}
	return DefaultRegistryURL
}

func (c *Client) apiURL() string {
	if c.APIURL != "" {
		return strings.TrimRight(c.APIURL, "/")
	}
	return DefaultAPIURL
}

// escapeName keeps the scope separator readable; the registry accepts
// both @scope/name and @scope%2Fname.
func escapeName(pkg string) string {
	scope, name, ok := strings.Cut(pkg, "/")
	if !ok {
		return url.PathEscape(pkg)
	}
	return url.PathEscape(scope) + "/" + url.PathEscape(name)
}

func formatDay(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
