package npm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ossanalytics/ossanalytics/internal/core"
	"github.com/ossanalytics/ossanalytics/internal/core/fetch"
)

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

type downloadsAPI struct {
	mu     sync.Mutex
	ranges []string
	value  func(day time.Time) int64
}

func (a *downloadsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest, ok := strings.CutPrefix(r.URL.Path, "/downloads/range/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	span, pkg, _ := strings.Cut(rest, "/")
	from, to, _ := strings.Cut(span, ":")

	a.mu.Lock()
	a.ranges = append(a.ranges, span)
	a.mu.Unlock()

	type entry struct {
		Downloads int64  `json:"downloads"`
		Day       string `json:"day"`
	}
	var entries []entry
	for d := date(from); !d.After(date(to)); d = d.AddDate(0, 0, 1) {
		entries = append(entries, entry{Downloads: a.value(d), Day: d.Format(time.DateOnly)})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"start":     from,
		"end":       to,
		"package":   pkg,
		"downloads": entries,
	})
}

func newClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)
	return &Client{
		Fetcher:     &fetch.Client{HTTP: srv.Client()},
		RegistryURL: srv.URL,
		APIURL:      srv.URL,
	}
}

func TestBatchWindowsStepBackFromEnd(t *testing.T) {
	start := date("2021-01-01")
	end := start.AddDate(0, 0, 800)

	windows := BatchWindows(start, end)
	require.Len(t, windows, 3)
	require.Equal(t, start, windows[0].Start)
	require.Equal(t, end, windows[2].End)
	for i, w := range windows {
		if i > 0 {
			require.Equal(t, windows[i-1].End, w.Start)
			require.Equal(t, BatchDays*24*time.Hour, w.End.Sub(w.Start))
		}
	}

	// Same inputs, same windows: cached ranges stay reusable.
	require.Equal(t, windows, BatchWindows(start, end))
	require.Empty(t, BatchWindows(end, start))
}

func TestFetchSeriesKeepsInteriorMissingDay(t *testing.T) {
	api := &downloadsAPI{value: func(d time.Time) int64 {
		if d.Equal(date("2021-01-05")) {
			return 0
		}
		return 10
	}}
	client := newClient(t, api)

	points, err := client.FetchSeries(context.Background(), "d3-array", date("2021-01-01"), date("2023-01-01"))
	require.NoError(t, err)
	require.Len(t, points, 730)
	require.Equal(t, []string{"2021-01-01:2021-12-31", "2022-01-01:2022-12-31"}, api.ranges)

	require.Equal(t, date("2021-01-01"), points[0].Date)
	require.True(t, points[4].Missing)
	require.Equal(t, date("2021-01-05"), points[4].Date)
	for i := 1; i < len(points); i++ {
		require.Equal(t, 24*time.Hour, points[i].Date.Sub(points[i-1].Date), "gap at %s", points[i].Date)
	}

	encoded, err := json.Marshal(points[4])
	require.NoError(t, err)
	require.JSONEq(t, `{"date":"2021-01-05","value":null}`, string(encoded))
}

func TestFetchSeriesTrimsEdges(t *testing.T) {
	api := &downloadsAPI{value: func(d time.Time) int64 {
		if d.Before(date("2024-01-04")) || !d.Before(date("2024-01-09")) {
			return 0
		}
		return int64(d.Day())
	}}
	client := newClient(t, api)

	points, err := client.FetchSeries(context.Background(), "@observablehq/plot", date("2024-01-01"), date("2024-01-11"))
	require.NoError(t, err)
	require.Len(t, points, 5)
	require.Equal(t, date("2024-01-04"), points[0].Date)
	require.Equal(t, int64(4), points[0].Value)
	require.Equal(t, date("2024-01-08"), points[4].Date)
	require.Equal(t, []string{"2024-01-01:2024-01-10"}, api.ranges)
}

func TestFetchSeriesEmptyDataset(t *testing.T) {
	client := newClient(t, &downloadsAPI{value: func(time.Time) int64 { return 0 }})

	_, err := client.FetchSeries(context.Background(), "left-pad", date("2024-01-01"), date("2024-02-01"))
	require.ErrorIs(t, err, core.ErrEmptyDataset)
}

func TestFetchSeriesFillsUnreportedDays(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"downloads":[{"downloads":5,"day":"2024-01-01"},{"downloads":7,"day":"2024-01-03"}]}`)
	}))

	points, err := client.FetchSeries(context.Background(), "d3", date("2024-01-01"), date("2024-01-04"))
	require.NoError(t, err)
	require.Len(t, points, 3)
	require.True(t, points[1].Missing)
	require.Equal(t, int64(7), points[2].Value)
}

func TestVersionsDropsPrereleasesAndSortsByDate(t *testing.T) {
	var versionsPath string
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/versions/"):
			versionsPath = r.URL.EscapedPath()
			_, _ = fmt.Fprint(w, `{"package":"@d3/plot","downloads":{"1.0.0":3,"1.1.0":40,"2.0.0-rc.1":9}}`)
		default:
			_, _ = fmt.Fprint(w, `{
				"name": "@d3/plot",
				"description": "plots",
				"dist-tags": {"latest": "1.1.0", "next": "2.0.0-rc.1"},
				"versions": {"1.0.0": {}, "1.1.0": {}, "2.0.0-rc.1": {}, "0.0.1": {}},
				"time": {
					"created": "2020-12-01T00:00:00.000Z",
					"1.0.0": "2021-02-01T10:00:00.000Z",
					"1.1.0": "2021-06-01T10:00:00.000Z",
					"2.0.0-rc.1": "2022-01-01T10:00:00.000Z"
				}
			}`)
		}
	}))

	versions, err := client.Versions(context.Background(), "@d3/plot")
	require.NoError(t, err)
	require.Equal(t, "/versions/@d3%2Fplot/last-week", versionsPath)

	require.Len(t, versions, 3)
	require.Equal(t, "1.0.0", versions[0].Version)
	require.Equal(t, int64(3), versions[0].Downloads)
	require.Equal(t, "1.1.0", versions[1].Version)
	require.Equal(t, int64(40), versions[1].Downloads)
	require.Equal(t, "0.0.1", versions[2].Version)
	require.Nil(t, versions[2].Date)

	doc, err := client.Package(context.Background(), "@d3/plot")
	require.NoError(t, err)
	require.Equal(t, "1.1.0", doc.Latest())
	require.Equal(t, date("2021-06-01").Add(10*time.Hour), *doc.PublishedAt("1.1.0"))
}
