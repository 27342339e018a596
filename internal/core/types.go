package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrEmptyDataset is returned when a download series has no usable points
// after trimming.
var ErrEmptyDataset = errors.New("empty dataset")

// Package identifies a tracked open-source package and its source repository.
type Package struct {
	Name  string `json:"name" yaml:"name"`
	Repo  string `json:"repo,omitempty" yaml:"repo,omitempty"`
	Group string `json:"group,omitempty" yaml:"group,omitempty"`
	Href  string `json:"href,omitempty" yaml:"href,omitempty"`
}

// CacheEntry is a previously fetched response keyed by URL.
type CacheEntry struct {
	URL     string            `json:"-"`
	Headers map[string]string `json:"headers"`
	Body    json.RawMessage   `json:"body"`
}

// DownloadPoint is one day of download counts. Missing marks days the
// registry did not report a reliable count for.
type DownloadPoint struct {
	Date    time.Time
	Value   int64
	Missing bool
}

type downloadPointJSON struct {
	Date  string `json:"date"`
	Value *int64 `json:"value"`
}

// MarshalJSON renders the day as YYYY-MM-DD and missing points with a null
// value.
func (p DownloadPoint) MarshalJSON() ([]byte, error) {
	out := downloadPointJSON{Date: p.Date.UTC().Format(time.DateOnly)}
	if !p.Missing {
		value := p.Value
		out.Value = &value
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the format produced by MarshalJSON. RFC 3339
// timestamps are truncated to their UTC day.
func (p *DownloadPoint) UnmarshalJSON(data []byte) error {
	var in downloadPointJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	date, err := time.Parse(time.DateOnly, in.Date)
	if err != nil {
		stamp, stampErr := time.Parse(time.RFC3339, in.Date)
		if stampErr != nil {
			return fmt.Errorf("download point date %q: %w", in.Date, err)
		}
		stamp = stamp.UTC()
		date = time.Date(stamp.Year(), stamp.Month(), stamp.Day(), 0, 0, 0, 0, time.UTC)
	}
	p.Date = date.UTC()
	p.Missing = in.Value == nil
	p.Value = 0
	if in.Value != nil {
		p.Value = *in.Value
	}
	return nil
}

// BatchWindow is a [Start, End) date range sized to a provider's per-call limit.
type BatchWindow struct {
	Start time.Time
	End   time.Time
}

// Rollup is a strict k-day window anchored at its first day.
type Rollup struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Sum     int64     `json:"sum"`
	Average float64   `json:"average"`
}

// VersionInfo describes a published package version.
type VersionInfo struct {
	Version   string     `json:"version"`
	Date      *time.Time `json:"date,omitempty"`
	Downloads int64      `json:"downloads"`
}

// CommitInfo describes a repository commit.
type CommitInfo struct {
	SHA     string    `json:"sha"`
	Message string    `json:"message"`
	Date    time.Time `json:"date"`
	Author  string    `json:"author,omitempty"`
}

// IssueInfo describes an issue or pull request.
type IssueInfo struct {
	Number      int            `json:"number"`
	Title       string         `json:"title"`
	State       string         `json:"state"`
	CreatedAt   time.Time      `json:"created_at"`
	ClosedAt    *time.Time     `json:"closed_at,omitempty"`
	Draft       bool           `json:"draft,omitempty"`
	Reactions   map[string]int `json:"reactions,omitempty"`
	PullRequest bool           `json:"pull_request,omitempty"`
}

// Dataset aggregates everything collected for one package.
type Dataset struct {
	Package          Package         `json:"package"`
	NPMName          string          `json:"npm_name"`
	Description      string          `json:"description,omitempty"`
	Stars            int             `json:"stars"`
	RecentStars      int             `json:"recent_stars"`
	LatestVersion    string          `json:"latest_version,omitempty"`
	LatestReleasedAt *time.Time      `json:"latest_released_at,omitempty"`
	DaysSinceRelease int             `json:"days_since_release"`
	WeeklyDownloads  int64           `json:"weekly_downloads"`
	PreviousWeekly   int64           `json:"previous_weekly_downloads"`
	WeeklyChange     float64         `json:"weekly_change"`
	Downloads        []DownloadPoint `json:"-"`
	Rollups7         []Rollup        `json:"-"`
	Rollups28        []Rollup        `json:"-"`
	Versions         []VersionInfo   `json:"-"`
	Commits          []CommitInfo    `json:"-"`
	Issues           []IssueInfo     `json:"-"`
	PullRequests     []IssueInfo     `json:"-"`
	Provenance       Provenance      `json:"provenance"`
}

// Provenance captures metadata about how a dataset was collected.
type Provenance struct {
	RunID       string    `json:"run_id"`
	CollectedAt time.Time `json:"collected_at"`
	Today       time.Time `json:"today"`
	Start       time.Time `json:"start"`
	ToolVersion string    `json:"tool_version"`
}
