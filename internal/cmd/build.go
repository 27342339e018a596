package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ossanalytics/ossanalytics/internal/config"
	apperrors "github.com/ossanalytics/ossanalytics/internal/errors"
	"github.com/ossanalytics/ossanalytics/internal/observability"
	"github.com/ossanalytics/ossanalytics/internal/output"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Collect datasets for the packages in the manifest",
	Long: `Collect download series, releases, commits, issues and stars for every
package in the manifest and write them under the output directory:

  <out>/<package>/downloads.json
  <out>/<package>/versions.json
  <out>/<package>/commits.json
  <out>/<package>/issues.json
  <out>/<package>/summary.json
  <out>/index.json

Responses are cached on disk, so repeated builds only fetch what changed.

Examples:
  ossanalytics build
  ossanalytics build --only 'd3-*' --output markdown
  ossanalytics build --manifest ./packages.yaml --out ./public/data`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringSlice("only", nil, "Glob patterns selecting packages (e.g. 'd3-*')")
	buildCmd.Flags().String("manifest", "", "Package manifest (defaults to manifest.path)")
	buildCmd.Flags().String("out", "", "Output directory (defaults to dataset.output_dir)")
	buildCmd.Flags().String("output", "table", "Summary format: table, json, markdown")
	buildCmd.Flags().Int("workers", 0, "Packages collected concurrently (defaults to workers)")
	buildCmd.Flags().Bool("no-cache", false, "Bypass the response cache")
}

func runBuild(cmd *cobra.Command, args []string) error {
	patterns, err := cmd.Flags().GetStringSlice("only")
	if err != nil {
		return err
	}
	manifestPath, err := cmd.Flags().GetString("manifest")
	if err != nil {
		return err
	}
	outDir, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}
	formatValue, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	workers, err := cmd.Flags().GetInt("workers")
	if err != nil {
		return err
	}
	noCache, err := cmd.Flags().GetBool("no-cache")
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(formatValue)
	if err != nil {
		return err
	}

	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	if manifestPath == "" {
		manifestPath = config.ResolvePath(cfg.Manifest.Path)
	}
	if outDir == "" {
		outDir = cfg.Dataset.OutputDir
	}

	manifest, err := config.LoadManifest(manifestPath)
	if err != nil {
		return err
	}
	pkgs, err := manifest.Filter(patterns)
	if err != nil {
		return err
	}
	if len(pkgs) == 0 {
		return fmt.Errorf("no packages in %s match %v", manifestPath, patterns)
	}

	client, err := newFetchClient(cfg, !noCache)
	if err != nil {
		return err
	}
	collector := newCollector(cfg, client, workers)

	ctx := cmd.Context()
	logger := observability.CLILogger
	logger.Info("Collecting datasets",
		zap.Int("packages", len(pkgs)),
		zap.String("manifest", manifestPath),
		zap.String("out", outDir))

	startedAt := time.Now()
	datasets, collectErr := collector.Collect(ctx, pkgs)

	writer := &output.Writer{Dir: outDir, Indent: true}
	for _, ds := range datasets {
		if err := writer.WriteDataset(ds); err != nil {
			return err
		}
	}
	if len(datasets) > 0 {
		if err := writer.WriteIndex(datasets, time.Now()); err != nil {
			return err
		}
	}

	rendered, err := output.NewFormatter(format).FormatSummary(datasets)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), rendered); err != nil {
		return err
	}

	logger.Info("Build finished",
		zap.Int("written", len(datasets)),
		zap.Int("failed", len(pkgs)-len(datasets)),
		zap.Duration("duration", time.Since(startedAt)))

	if collectErr != nil {
		if ctx.Err() != nil {
			return collectErr
		}
		return apperrors.WrapCollect(ctx, collectErr,
			fmt.Sprintf("%d of %d packages failed", len(pkgs)-len(datasets), len(pkgs)))
	}
	return nil
}
