package output

import (
	"encoding/json"

	"github.com/ossanalytics/ossanalytics/internal/core"
)

// JSONFormatter renders the dataset summaries as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatSummary renders the summary fields of every dataset.
func (f *JSONFormatter) FormatSummary(datasets []*core.Dataset) (string, error) {
	if datasets == nil {
		datasets = []*core.Dataset{}
	}
	data, err := marshal(datasets, f.Indent)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func marshal(v any, indent bool) ([]byte, error) {
	if indent {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}
