package npm

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ossanalytics/ossanalytics/internal/core"
	"github.com/ossanalytics/ossanalytics/internal/core/fetch"
)

// BatchDays is the longest range the downloads API serves per call.
const BatchDays = 365

const day = 24 * time.Hour

// BatchWindows splits [start, end) into windows of at most BatchDays days,
// stepping backward from end so windows stay aligned as end advances. The
// result is in chronological order.
func BatchWindows(start, end time.Time) []core.BatchWindow {
	start = truncateDay(start)
	end = truncateDay(end)

	var windows []core.BatchWindow
	for batchEnd := end; batchEnd.After(start); {
		batchStart := batchEnd.Add(-BatchDays * day)
		if batchStart.Before(start) {
			batchStart = start
		}
		windows = append(windows, core.BatchWindow{Start: batchStart, End: batchEnd})
		batchEnd = batchStart
	}
	slices.Reverse(windows)
	return windows
}

// FetchSeries returns daily downloads for pkg over [start, end). Days the
// API reports as zero, or does not report, become missing points. Leading
// and trailing missing days are trimmed; interior ones are kept so the
// series advances by exactly one day per point.
func (c *Client) FetchSeries(ctx context.Context, pkg string, start, end time.Time) ([]core.DownloadPoint, error) {
	if err := c.validate(pkg); err != nil {
		return nil, err
	}

	var points []core.DownloadPoint
	for _, window := range BatchWindows(start, end) {
		batch, err := c.fetchWindow(ctx, pkg, window)
		if err != nil {
			return nil, err
		}
		points = append(points, batch...)
	}

	points = Trim(points)
	if len(points) == 0 {
		return nil, fmt.Errorf("%s: %w", pkg, core.ErrEmptyDataset)
	}
	return points, nil
}

func (c *Client) fetchWindow(ctx context.Context, pkg string, window core.BatchWindow) ([]core.DownloadPoint, error) {
	last := window.End.Add(-day)
	rawURL := fmt.Sprintf("%s/downloads/range/%s:%s/%s",
		c.apiURL(), formatDay(window.Start), formatDay(last), escapeName(pkg))

	resp, err := c.Fetcher.Request(ctx, rawURL, fetch.Options{})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Downloads []struct {
			Downloads int64  `json:"downloads"`
			Day       string `json:"day"`
		} `json:"downloads"`
	}
	if err := resp.Decode(&payload); err != nil {
		return nil, err
	}

	reported := make(map[string]int64, len(payload.Downloads))
	for _, entry := range payload.Downloads {
		date, err := time.Parse(time.DateOnly, entry.Day)
		if err != nil {
			return nil, fmt.Errorf("parse day %q for %s: %w", entry.Day, pkg, err)
		}
		reported[formatDay(date)] = entry.Downloads
	}

	points := make([]core.DownloadPoint, 0, len(payload.Downloads))
	for date := window.Start; date.Before(window.End); date = date.Add(day) {
		value, ok := reported[formatDay(date)]
		if !ok || value <= 0 {
			points = append(points, core.DownloadPoint{Date: date, Missing: true})
			continue
		}
		points = append(points, core.DownloadPoint{Date: date, Value: value})
	}
	return points, nil
}

// Trim drops leading and trailing missing points.
func Trim(points []core.DownloadPoint) []core.DownloadPoint {
	first := slices.IndexFunc(points, func(p core.DownloadPoint) bool { return !p.Missing })
	if first < 0 {
		return nil
	}
	last := len(points) - 1
	for points[last].Missing {
		last--
	}
	return points[first : last+1]
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
