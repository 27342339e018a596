package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ossanalytics/ossanalytics/internal/core/cache"
	"github.com/ossanalytics/ossanalytics/internal/observability"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the response cache",
}

var cachePathCmd = &cobra.Command{
	Use:   "path [url]",
	Short: "Print the cache root, or the file a URL is cached in",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadedConfig()
		if err != nil {
			return err
		}
		store, err := openCache(cfg)
		if err != nil {
			return err
		}

		if len(args) == 0 {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), store.Root())
			return err
		}
		path, err := store.Path(args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
		return err
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show <url>",
	Short: "Print the cached response body for a URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadedConfig()
		if err != nil {
			return err
		}
		store, err := openCache(cfg)
		if err != nil {
			return err
		}

		entry, err := store.Get(cmd.Context(), args[0])
		if errors.Is(err, cache.ErrNotFound) {
			return fmt.Errorf("%s is not cached", args[0])
		}
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(entry.Body))
		return err
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached response",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadedConfig()
		if err != nil {
			return err
		}
		store, err := openCache(cfg)
		if err != nil {
			return err
		}
		if err := store.Clear(cmd.Context()); err != nil {
			return err
		}

		observability.CLILogger.Info("Cache cleared", zap.String("dir", store.Root()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cachePathCmd, cacheShowCmd, cacheClearCmd)
}
