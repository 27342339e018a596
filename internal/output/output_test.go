package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ossanalytics/ossanalytics/internal/core"
)

func sampleDatasets() []*core.Dataset {
	released := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return []*core.Dataset{
		{
			Package:          core.Package{Name: "d3-array", Repo: "d3/d3-array", Group: "d3", Href: "https://d3js.org/d3-array"},
			Stars:            4500,
			RecentStars:      12,
			LatestVersion:    "3.2.4",
			LatestReleasedAt: &released,
			DaysSinceRelease: 30,
			WeeklyDownloads:  1234567,
			PreviousWeekly:   1000000,
			WeeklyChange:     0.234567,
		},
		{
			Package:         core.Package{Name: "@d3/plot|beta", Group: "d3"},
			Stars:           10,
			WeeklyDownloads: 42,
		},
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"":         FormatTable,
		"TABLE":    FormatTable,
		" json ":   FormatJSON,
		"markdown": FormatMarkdown,
		"md":       FormatMarkdown,
	}
	for in, want := range cases {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseFormat("csv")
	require.Error(t, err)
}

func TestNewFormatter(t *testing.T) {
	require.IsType(t, &JSONFormatter{}, NewFormatter(FormatJSON))
	require.IsType(t, &MarkdownFormatter{}, NewFormatter(FormatMarkdown))
	require.IsType(t, &TableFormatter{}, NewFormatter(FormatTable))
}

func TestTableFormatterUsesThousandsSeparators(t *testing.T) {
	out, err := (&TableFormatter{}).FormatSummary(sampleDatasets())
	require.NoError(t, err)
	require.Contains(t, out, "d3-array")
	require.Contains(t, out, "1,234,567")
	require.Contains(t, out, "4,500")
	require.Contains(t, out, "+23.5%")
	require.Contains(t, out, "3.2.4 (30d ago)")
	// Footer totals weekly downloads.
	require.Contains(t, out, "1,234,609")
}

func TestMarkdownFormatterEscapesCells(t *testing.T) {
	out, err := (&MarkdownFormatter{}).FormatSummary(sampleDatasets())
	require.NoError(t, err)
	require.Contains(t, out, "[d3-array](https://d3js.org/d3-array)")
	require.Contains(t, out, `@d3/plot\|beta`)
	require.Contains(t, out, "| Package | Group |")
}

func TestJSONFormatterSummaryFields(t *testing.T) {
	out, err := (&JSONFormatter{}).FormatSummary(sampleDatasets())
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 2)
	require.Equal(t, float64(1234567), decoded[0]["weekly_downloads"])
	_, hasDownloads := decoded[0]["downloads"]
	require.False(t, hasDownloads)

	empty, err := (&JSONFormatter{}).FormatSummary(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", empty)
}

func TestWriterWritesPackageFiles(t *testing.T) {
	dir := t.TempDir()
	w := &Writer{Dir: dir, Indent: true}

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	ds := &core.Dataset{
		Package: core.Package{Name: "@d3/plot"},
		Downloads: []core.DownloadPoint{
			{Date: day, Value: 5},
			{Date: day.AddDate(0, 0, 1), Missing: true},
		},
		Issues:       []core.IssueInfo{{Number: 1, Title: "bug"}},
		PullRequests: []core.IssueInfo{{Number: 2, Title: "fix", PullRequest: true}},
		Provenance:   core.Provenance{Today: day.AddDate(0, 0, 2)},
	}
	require.NoError(t, w.WriteDataset(ds))

	pkgDir := filepath.Join(dir, "@d3", "plot")
	for _, name := range []string{DownloadsFile, VersionsFile, CommitsFile, IssuesFile, SummaryFile} {
		require.FileExists(t, filepath.Join(pkgDir, name))
	}

	data, err := os.ReadFile(filepath.Join(pkgDir, DownloadsFile))
	require.NoError(t, err)
	require.Contains(t, string(data), `"value": null`)
	require.Contains(t, string(data), `"rollups_7": []`)

	var issues issuesDocument
	data, err = os.ReadFile(filepath.Join(pkgDir, IssuesFile))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &issues))
	require.Len(t, issues.Issues, 1)
	require.Len(t, issues.PullRequests, 1)

	versions, err := os.ReadFile(filepath.Join(pkgDir, VersionsFile))
	require.NoError(t, err)
	require.Equal(t, "[]", strings.TrimSpace(string(versions)))

	entries, err := os.ReadDir(pkgDir)
	require.NoError(t, err)
	require.Len(t, entries, 5)
}

func TestWriterRejectsUnsafeNames(t *testing.T) {
	w := &Writer{Dir: t.TempDir()}
	require.Error(t, w.WriteDataset(&core.Dataset{Package: core.Package{Name: "../escape"}}))
	require.Error(t, w.WriteDataset(&core.Dataset{Package: core.Package{Name: " "}}))
	require.Error(t, w.WriteDataset(nil))
}

func TestWriterIndex(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	w := &Writer{Dir: dir}
	now := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	require.NoError(t, w.WriteIndex(sampleDatasets(), now))

	data, err := os.ReadFile(filepath.Join(dir, IndexFile))
	require.NoError(t, err)

	var doc indexDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	require.True(t, doc.GeneratedAt.Equal(now))
	require.Len(t, doc.Packages, 2)
	require.Equal(t, "d3-array", doc.Packages[0].Package.Name)
}
