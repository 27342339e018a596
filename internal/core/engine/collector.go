package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ossanalytics/ossanalytics/internal/core"
	"github.com/ossanalytics/ossanalytics/internal/core/series"
	"github.com/ossanalytics/ossanalytics/internal/metrics"
)

// DefaultStart is the earliest day a download series reaches back to.
var DefaultStart = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

// statsDelay gives npm time to finish computing the previous day.
const statsDelay = 6 * time.Hour

// RepoSource reads repository activity.
type RepoSource interface {
	Repo(ctx context.Context, repo string) (*core.Repository, error)
	PackageJSONName(ctx context.Context, repo string) (string, error)
	Commits(ctx context.Context, repo string) ([]core.CommitInfo, error)
	Issues(ctx context.Context, repo string) (issues, pulls []core.IssueInfo, err error)
	RecentStargazers(ctx context.Context, repo string, since time.Time) (int, error)
}

// RegistrySource reads package metadata and downloads.
type RegistrySource interface {
	Package(ctx context.Context, pkg string) (*core.RegistryPackage, error)
	DownloadsByVersion(ctx context.Context, pkg string) (map[string]int64, error)
	FetchSeries(ctx context.Context, pkg string, start, end time.Time) ([]core.DownloadPoint, error)
}

// Collector assembles datasets for many packages concurrently.
type Collector struct {
	Repos       RepoSource
	Registry    RegistrySource
	Workers     int
	Start       time.Time
	Logger      *logging.Logger
	ToolVersion string
	Clock       func() time.Time
}

// Collect builds one dataset per package, in input order. Packages that fail
// are left out and their errors joined into the returned error.
func (c *Collector) Collect(ctx context.Context, pkgs []core.Package) ([]*core.Dataset, error) {
	if c == nil || c.Repos == nil || c.Registry == nil {
		return nil, errors.New("collector is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := c.now()
	runID := uuid.NewString()
	results := make([]*core.Dataset, len(pkgs))
	errs := make([]error, len(pkgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())
	for i, pkg := range pkgs {
		g.Go(func() error {
			startedAt := time.Now()
			dataset, err := c.collectOne(gctx, pkg, now)
			metrics.RecordPackageCollected(pkg.Name, err == nil, time.Since(startedAt))
			if err != nil {
				errs[i] = fmt.Errorf("collect %s: %w", pkg.Name, err)
				c.warn("package collection failed", zap.String("package", pkg.Name), zap.Error(err))
				return nil
			}
			dataset.Provenance.RunID = runID
			results[i] = dataset
			c.info("package collected",
				zap.String("package", pkg.Name),
				zap.Int("points", len(dataset.Downloads)),
				zap.Duration("took", time.Since(startedAt)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	datasets := make([]*core.Dataset, 0, len(results))
	for _, dataset := range results {
		if dataset != nil {
			datasets = append(datasets, dataset)
		}
	}
	return datasets, errors.Join(errs...)
}

func (c *Collector) collectOne(ctx context.Context, pkg core.Package, now time.Time) (*core.Dataset, error) {
	repo := strings.TrimSpace(pkg.Repo)
	if repo == "" {
		return nil, fmt.Errorf("package %s has no repository", pkg.Name)
	}

	today := Today(now)
	lastWeek := today.AddDate(0, 0, -7)

	info, err := c.Repos.Repo(ctx, repo)
	if err != nil {
		return nil, err
	}

	npmName := pkg.Name
	if declared, err := c.Repos.PackageJSONName(ctx, repo); err == nil {
		npmName = declared
	} else {
		c.debug("package.json lookup failed, using manifest name",
			zap.String("package", pkg.Name), zap.Error(err))
	}

	commits, err := c.Repos.Commits(ctx, repo)
	if err != nil {
		return nil, err
	}
	issues, pulls, err := c.Repos.Issues(ctx, repo)
	if err != nil {
		return nil, err
	}
	recentStars, err := c.Repos.RecentStargazers(ctx, repo, lastWeek)
	if err != nil {
		return nil, err
	}

	start := SeriesStart(c.startFloor(), commits)
	downloads, err := c.Registry.FetchSeries(ctx, npmName, start, today)
	switch {
	case errors.Is(err, core.ErrEmptyDataset):
		c.warn("no downloads reported", zap.String("package", npmName))
	case err != nil:
		return nil, err
	}

	registry, err := c.Registry.Package(ctx, npmName)
	if err != nil {
		return nil, err
	}
	byVersion, err := c.Registry.DownloadsByVersion(ctx, npmName)
	if err != nil {
		return nil, err
	}

	current, previous := series.WeeklyTotals(downloads)
	dataset := &core.Dataset{
		Package:         pkg,
		NPMName:         npmName,
		Description:     info.Description,
		Stars:           info.Stars,
		RecentStars:     recentStars,
		LatestVersion:   registry.Latest(),
		WeeklyDownloads: current,
		PreviousWeekly:  previous,
		WeeklyChange:    series.Change(current, previous),
		Downloads:       downloads,
		Rollups7:        series.Trailing(downloads, 7),
		Rollups28:       series.Trailing(downloads, 28),
		Versions:        registry.Released(byVersion),
		Commits:         commits,
		Issues:          issues,
		PullRequests:    pulls,
		Provenance: core.Provenance{
			CollectedAt: now,
			Today:       today,
			Start:       start,
			ToolVersion: c.ToolVersion,
		},
	}
	if dataset.Description == "" {
		dataset.Description = registry.Description
	}
	if released := registry.PublishedAt(dataset.LatestVersion); released != nil {
		dataset.LatestReleasedAt = released
		dataset.DaysSinceRelease = int(today.Sub(Day(*released)).Hours() / 24)
	}
	return dataset, nil
}

// Today is the last complete UTC day of download statistics at now.
func Today(now time.Time) time.Time {
	return Day(now.Add(-statsDelay))
}

// Day truncates t to UTC midnight.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SeriesStart is the later of floor and the day of the oldest commit.
func SeriesStart(floor time.Time, commits []core.CommitInfo) time.Time {
	start := Day(floor)
	var oldest time.Time
	for _, commit := range commits {
		if commit.Date.IsZero() {
			continue
		}
		if oldest.IsZero() || commit.Date.Before(oldest) {
			oldest = commit.Date
		}
	}
	if !oldest.IsZero() && Day(oldest).After(start) {
		return Day(oldest)
	}
	return start
}

func (c *Collector) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return 4
}

func (c *Collector) startFloor() time.Time {
	if c.Start.IsZero() {
		return DefaultStart
	}
	return c.Start
}

func (c *Collector) now() time.Time {
	if c != nil && c.Clock != nil {
		return c.Clock().UTC()
	}
	return time.Now().UTC()
}

func (c *Collector) debug(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Debug(msg, fields...)
	}
}

func (c *Collector) info(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Info(msg, fields...)
	}
}

func (c *Collector) warn(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Warn(msg, fields...)
	}
}
