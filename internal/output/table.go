package output

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ossanalytics/ossanalytics/internal/core"
)

// TableFormatter renders a summary as a terminal table.
type TableFormatter struct{}

// FormatSummary renders one row per dataset.
func (f *TableFormatter) FormatSummary(datasets []*core.Dataset) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(toRow(summaryHeader))
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})

	var weekly int64
	for _, ds := range datasets {
		if ds == nil {
			continue
		}
		t.AppendRow(toRow(summaryRow(ds)))
		weekly += ds.WeeklyDownloads
	}

	if len(datasets) > 0 {
		t.AppendFooter(table.Row{"", "", "", "", formatCount(weekly), "", ""})
	}
	return t.Render(), nil
}

func toRow(values []string) table.Row {
	row := make(table.Row, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}
