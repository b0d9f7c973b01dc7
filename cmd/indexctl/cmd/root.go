// Package cmd provides the indexctl commands for operating the index.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pressindex/internal/app/bootstrap"
	"pressindex/internal/platform/config"
	applog "pressindex/internal/platform/log"
)

var logLevel string

// NewRootCmd creates the root command for indexctl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indexctl",
		Short: "Operate the content index: rebuild, replay failed syncs, query",
		Long: `indexctl runs the same indexing pipeline as the server from the command line.

Configuration is read the same way as the server: defaults, then the JSON file
named by APP_CONFIG_FILE, then environment variables (.env is loaded if present).`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	cmd.AddCommand(newReindexCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newReplayCmd())
	cmd.AddCommand(newEventsCmd())
	cmd.AddCommand(newSearchCmd())
	return cmd
}

// loadComponents loads configuration and wires the pipeline. Callers must Close the result.
func loadComponents(ctx context.Context, cmd *cobra.Command) (*bootstrap.Components, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	applog.Init(applog.Config{
		Level:  level,
		Format: cfg.LogFormat,
		Output: cmd.ErrOrStderr(),
	})
	return bootstrap.Build(ctx, cfg)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
