package core

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// Repository is the repository metadata used in a dataset.
type Repository struct {
	FullName    string    `json:"full_name"`
	Description string    `json:"description"`
	Stars       int       `json:"stargazers_count"`
	Forks       int       `json:"forks_count"`
	OpenIssues  int       `json:"open_issues_count"`
	PushedAt    time.Time `json:"pushed_at"`
}

// RegistryPackage is the subset of an npm registry document in use.
type RegistryPackage struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	DistTags    map[string]string          `json:"dist-tags"`
	Versions    map[string]json.RawMessage `json:"versions"`
	Time        map[string]string          `json:"time"`
}

// Latest returns the version tagged latest.
func (p *RegistryPackage) Latest() string {
	if p == nil {
		return ""
	}
	return p.DistTags["latest"]
}

// PublishedAt returns when version was published, if known.
func (p *RegistryPackage) PublishedAt(version string) *time.Time {
	if p == nil {
		return nil
	}
	raw, ok := p.Time[version]
	if !ok {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	parsed = parsed.UTC()
	return &parsed
}

// Released joins published versions with download counts, dropping
// prereleases and ordering by publish date. Undated versions sort last.
func (p *RegistryPackage) Released(downloads map[string]int64) []VersionInfo {
	if p == nil {
		return nil
	}
	versions := make([]VersionInfo, 0, len(p.Versions))
	for version := range p.Versions {
		if IsPrerelease(version) {
			continue
		}
		versions = append(versions, VersionInfo{
			Version:   version,
			Date:      p.PublishedAt(version),
			Downloads: downloads[version],
		})
	}
	slices.SortFunc(versions, func(a, b VersionInfo) int {
		switch {
		case a.Date == nil && b.Date == nil:
			return strings.Compare(a.Version, b.Version)
		case a.Date == nil:
			return 1
		case b.Date == nil:
			return -1
		}
		if c := a.Date.Compare(*b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.Version, b.Version)
	})
	return versions
}

// IsPrerelease reports semver prerelease versions such as 2.0.0-rc.1.
func IsPrerelease(version string) bool {
	return strings.Contains(version, "-")
}
