// Package github reads repository metadata, commits, issues and stargazers
// from the GitHub REST API.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ossanalytics/ossanalytics/internal/core"
	"github.com/ossanalytics/ossanalytics/internal/core/fetch"
)

const (
	DefaultBaseURL = "https://api.github.com"

	acceptJSON = "application/vnd.github.v3+json"
	acceptStar = "application/vnd.github.star+json"

	maxMessageRunes = 255
)

// Lister performs cached requests and paginated listings; *fetch.Client
// satisfies it.
type Lister interface {
	Request(ctx context.Context, rawURL string, opts fetch.Options) (*fetch.Response, error)
	List(ctx context.Context, rawURL string, opts fetch.ListOptions) iter.Seq2[json.RawMessage, error]
}

// Client talks to the GitHub REST API for one token.
type Client struct {
	Fetcher Lister
	BaseURL string
	Token   string
}

// Repo fetches metadata for owner/name.
func (c *Client) Repo(ctx context.Context, repo string) (*core.Repository, error) {
	rawURL, err := c.repoURL(repo, "")
	if err != nil {
		return nil, err
	}
	resp, err := c.Fetcher.Request(ctx, rawURL, c.options(acceptJSON))
	if err != nil {
		return nil, err
	}
	var out core.Repository
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PackageJSONName reads the npm package name declared by the repository's
// root package.json.
func (c *Client) PackageJSONName(ctx context.Context, repo string) (string, error) {
	rawURL, err := c.repoURL(repo, "/contents/package.json")
	if err != nil {
		return "", err
	}
	resp, err := c.Fetcher.Request(ctx, rawURL, c.options(acceptJSON))
	if err != nil {
		return "", err
	}

	var file struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := resp.Decode(&file); err != nil {
		return "", err
	}
	if file.Encoding != "" && file.Encoding != "base64" {
		return "", fmt.Errorf("package.json for %s: unsupported encoding %q", repo, file.Encoding)
	}

	// GitHub wraps base64 content at 60 columns.
	decoded, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(file.Content), ""))
	if err != nil {
		return "", fmt.Errorf("decode package.json for %s: %w", repo, err)
	}
	var manifest struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(decoded, &manifest); err != nil {
		return "", fmt.Errorf("parse package.json for %s: %w", repo, err)
	}
	if manifest.Name == "" {
		return "", fmt.Errorf("package.json for %s has no name", repo)
	}
	return manifest.Name, nil
}

// Commits lists the default branch history, newest first.
func (c *Client) Commits(ctx context.Context, repo string) ([]core.CommitInfo, error) {
	rawURL, err := c.repoURL(repo, "/commits")
	if err != nil {
		return nil, err
	}

	var commits []core.CommitInfo
	for raw, err := range c.Fetcher.List(ctx, rawURL, fetch.ListOptions{Options: c.options(acceptJSON)}) {
		if err != nil {
			return nil, err
		}
		// author is the GitHub account and is null when the commit email
		// matches no account.
		var item struct {
			SHA    string `json:"sha"`
			Commit struct {
				Message   string `json:"message"`
				Committer struct {
					Date time.Time `json:"date"`
				} `json:"committer"`
			} `json:"commit"`
			Author *struct {
				Login string `json:"login"`
			} `json:"author"`
		}
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("decode commit for %s: %w", repo, err)
		}
		info := core.CommitInfo{
			SHA:     item.SHA,
			Message: TruncateMessage(item.Commit.Message),
			Date:    item.Commit.Committer.Date.UTC(),
		}
		if item.Author != nil {
			info.Author = item.Author.Login
		}
		commits = append(commits, info)
	}
	return commits, nil
}

// Issues lists every issue and pull request, split by kind.
func (c *Client) Issues(ctx context.Context, repo string) (issues, pulls []core.IssueInfo, err error) {
	rawURL, err := c.repoURL(repo, "/issues?state=all")
	if err != nil {
		return nil, nil, err
	}

	for raw, err := range c.Fetcher.List(ctx, rawURL, fetch.ListOptions{Options: c.options(acceptJSON)}) {
		if err != nil {
			return nil, nil, err
		}
		var item struct {
			Number      int             `json:"number"`
			Title       string          `json:"title"`
			State       string          `json:"state"`
			CreatedAt   time.Time       `json:"created_at"`
			ClosedAt    *time.Time      `json:"closed_at"`
			Draft       bool            `json:"draft"`
			Reactions   map[string]any  `json:"reactions"`
			PullRequest json.RawMessage `json:"pull_request"`
		}
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, nil, fmt.Errorf("decode issue for %s: %w", repo, err)
		}

		info := core.IssueInfo{
			Number:      item.Number,
			Title:       item.Title,
			State:       item.State,
			CreatedAt:   item.CreatedAt.UTC(),
			ClosedAt:    item.ClosedAt,
			Draft:       item.Draft,
			Reactions:   reactionCounts(item.Reactions),
			PullRequest: len(item.PullRequest) > 0 && string(item.PullRequest) != "null",
		}
		if info.PullRequest {
			pulls = append(pulls, info)
		} else {
			issues = append(issues, info)
		}
	}
	return issues, pulls, nil
}

// RecentStargazers counts stars given at or after since. It walks the
// stargazer list newest first and stops at the first older star.
func (c *Client) RecentStargazers(ctx context.Context, repo string, since time.Time) (int, error) {
	rawURL, err := c.repoURL(repo, "/stargazers")
	if err != nil {
		return 0, err
	}

	count := 0
	opts := fetch.ListOptions{Options: c.options(acceptStar), Reverse: true}
	for raw, err := range c.Fetcher.List(ctx, rawURL, opts) {
		if err != nil {
			return 0, err
		}
		var star struct {
			StarredAt time.Time `json:"starred_at"`
		}
		if err := json.Unmarshal(raw, &star); err != nil {
			return 0, fmt.Errorf("decode stargazer for %s: %w", repo, err)
		}
		if star.StarredAt.Before(since) {
			break
		}
		count++
	}
	return count, nil
}

// TruncateMessage keeps the first paragraph of a commit message, capped at
// 255 runes. CRLF line endings count as LF; other whitespace is kept.
func TruncateMessage(message string) string {
	message = strings.ReplaceAll(message, "\r\n", "\n")
	if i := strings.Index(message, "\n\n"); i >= 0 {
		message = message[:i]
	}
	if utf8.RuneCountInString(message) <= maxMessageRunes {
		return message
	}
	runes := []rune(message)
	return string(runes[:maxMessageRunes-1]) + "…"
}

// RepoFromHref extracts owner/name from a github.com URL.
func RepoFromHref(href string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(href))
	if err != nil || !strings.EqualFold(parsed.Hostname(), "github.com") {
		return "", false
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", false
	}
	return parts[0] + "/" + strings.TrimSuffix(parts[1], ".git"), true
}

func (c *Client) repoURL(repo, suffix string) (string, error) {
	if c == nil || c.Fetcher == nil {
		return "", errors.New("github client is not configured")
	}
	owner, name, ok := strings.Cut(strings.TrimSpace(repo), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("invalid repository %q, expected owner/name", repo)
	}
	base := DefaultBaseURL
	if c.BaseURL != "" {
		base = strings.TrimRight(c.BaseURL, "/")
	}
	return base + "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(name) + suffix, nil
}

func (c *Client) options(accept string) fetch.Options {
	opts := fetch.Options{Accept: accept}
	if token := strings.TrimSpace(c.Token); token != "" {
		opts.Authorization = "token " + token
	}
	return opts
}

func reactionCounts(raw map[string]any) map[string]int {
	counts := make(map[string]int)
	for key, value := range raw {
		if key == "url" || key == "total_count" {
			continue
		}
		if n, ok := value.(float64); ok && n > 0 {
			counts[key] = int(n)
		}
	}
	if len(counts) == 0 {
		return nil
	}
	return counts
}
