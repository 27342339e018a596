package output

import (
	"strings"

	"github.com/ossanalytics/ossanalytics/internal/core"
)

// MarkdownFormatter renders a summary as a Markdown table.
type MarkdownFormatter struct{}

// FormatSummary renders one row per dataset.
func (f *MarkdownFormatter) FormatSummary(datasets []*core.Dataset) (string, error) {
	var sb strings.Builder
	sb.WriteString("# Open-source analytics\n\n")
	writeMarkdownRow(&sb, summaryHeader)
	sb.WriteString("|" + strings.Repeat("---|", len(summaryHeader)) + "\n")

	for _, ds := range datasets {
		if ds == nil {
			continue
		}
		row := summaryRow(ds)
		if ds.Package.Href != "" {
			row[0] = "[" + escapeMarkdownCell(row[0]) + "](" + ds.Package.Href + ")"
		} else {
			row[0] = escapeMarkdownCell(row[0])
		}
		writeMarkdownRow(&sb, row)
	}
	return sb.String(), nil
}

func writeMarkdownRow(sb *strings.Builder, cells []string) {
	sb.WriteString("|")
	for _, cell := range cells {
		sb.WriteString(" ")
		sb.WriteString(cell)
		sb.WriteString(" |")
	}
	sb.WriteString("\n")
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
