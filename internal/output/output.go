// Package output renders collected datasets for terminals and writes the
// per-package JSON files a dashboard reads.
package output

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ossanalytics/ossanalytics/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders a run summary.
type Formatter interface {
	FormatSummary(datasets []*core.Dataset) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

var printer = message.NewPrinter(language.English)

// formatCount renders n with thousands separators (en-US).
func formatCount[T int | int64](n T) string {
	return printer.Sprintf("%d", n)
}

// formatChange renders a relative change as a signed percentage.
func formatChange(change float64, previous int64) string {
	if previous == 0 {
		return "–"
	}
	return printer.Sprintf("%+.1f%%", change*100)
}

func formatRelease(ds *core.Dataset) string {
	if ds.LatestVersion == "" {
		return "–"
	}
	if ds.LatestReleasedAt == nil {
		return ds.LatestVersion
	}
	return fmt.Sprintf("%s (%dd ago)", ds.LatestVersion, ds.DaysSinceRelease)
}

func summaryRow(ds *core.Dataset) []string {
	return []string{
		ds.Package.Name,
		ds.Package.Group,
		formatCount(ds.Stars),
		"+" + formatCount(ds.RecentStars),
		formatCount(ds.WeeklyDownloads),
		formatChange(ds.WeeklyChange, ds.PreviousWeekly),
		formatRelease(ds),
	}
}

var summaryHeader = []string{"Package", "Group", "Stars", "Stars (7d)", "Downloads (7d)", "Change", "Latest"}
