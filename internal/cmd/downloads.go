package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ossanalytics/ossanalytics/internal/core"
	"github.com/ossanalytics/ossanalytics/internal/core/engine"
	"github.com/ossanalytics/ossanalytics/internal/core/series"
	apperrors "github.com/ossanalytics/ossanalytics/internal/errors"
)

var downloadsCmd = &cobra.Command{
	Use:   "downloads <package>",
	Short: "Print the daily download series for one npm package",
	Long: `Fetch the stitched daily download series for an npm package as JSON.
Days the registry did not report are printed with a null value.

With --window, print strict trailing rollups of that many days instead.

Examples:
  ossanalytics downloads d3-array --start 2024-01-01
  ossanalytics downloads @d3/plot --window 7`,
	Args: cobra.ExactArgs(1),
	RunE: runDownloads,
}

func init() {
	rootCmd.AddCommand(downloadsCmd)

	downloadsCmd.Flags().String("start", "", "First day, YYYY-MM-DD (defaults to dataset.start)")
	downloadsCmd.Flags().String("end", "", "Day after the last day, YYYY-MM-DD (defaults to today)")
	downloadsCmd.Flags().Int("window", 0, "Print k-day rollups instead of daily points")
	downloadsCmd.Flags().Bool("no-cache", false, "Bypass the response cache")
}

type downloadsReport struct {
	Package string               `json:"package"`
	Start   time.Time            `json:"start"`
	End     time.Time            `json:"end"`
	Points  []core.DownloadPoint `json:"points,omitempty"`
	Window  int                  `json:"window,omitempty"`
	Rollups []core.Rollup        `json:"rollups,omitempty"`
}

func runDownloads(cmd *cobra.Command, args []string) error {
	pkg := strings.TrimSpace(args[0])
	startValue, err := cmd.Flags().GetString("start")
	if err != nil {
		return err
	}
	endValue, err := cmd.Flags().GetString("end")
	if err != nil {
		return err
	}
	window, err := cmd.Flags().GetInt("window")
	if err != nil {
		return err
	}
	noCache, err := cmd.Flags().GetBool("no-cache")
	if err != nil {
		return err
	}
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	start, err := parseDay(startValue, cfg.Dataset.Start)
	if err != nil {
		return fmt.Errorf("--start: %w", err)
	}
	end, err := parseDay(endValue, engine.Today(time.Now()))
	if err != nil {
		return fmt.Errorf("--end: %w", err)
	}
	if err := checkDownloadsRange(start, end, window); err != nil {
		return err
	}

	client, err := newFetchClient(cfg, !noCache)
	if err != nil {
		return err
	}
	points, err := newNPMClient(cfg, client).FetchSeries(cmd.Context(), pkg, start, end)
	if err != nil {
		return err
	}

	report := buildDownloadsReport(pkg, start, end, points, window)
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func buildDownloadsReport(pkg string, start, end time.Time, points []core.DownloadPoint, window int) downloadsReport {
	report := downloadsReport{Package: pkg, Start: start, End: end}
	if window > 0 {
		report.Window = window
		report.Rollups = series.Trailing(points, window)
		if report.Rollups == nil {
			report.Rollups = []core.Rollup{}
		}
		return report
	}
	report.Points = points
	return report
}

// checkDownloadsRange rejects an empty range or a negative rollup window.
func checkDownloadsRange(start, end time.Time, window int) error {
	if window < 0 {
		return apperrors.NewInvalidInputError(fmt.Sprintf("--window must be positive, got %d", window))
	}
	if !end.After(start) {
		return apperrors.NewInvalidInputError(fmt.Sprintf("--end %s must be after --start %s",
			end.Format(time.DateOnly), start.Format(time.DateOnly)))
	}
	return nil
}

// parseDay parses YYYY-MM-DD as a UTC day; empty input yields fallback.
func parseDay(value string, fallback time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return engine.Day(fallback), nil
	}
	day, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", value)
	}
	return day.UTC(), nil
}
