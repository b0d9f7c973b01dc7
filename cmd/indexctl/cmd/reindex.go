package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pressindex/internal/domain/content"
	"pressindex/internal/domain/syncer"
	applog "pressindex/internal/platform/log"
)

type reindexOptions struct {
	purge    bool
	workers  int
	pageSize int
}

func newReindexCmd() *cobra.Command {
	var opts reindexOptions

	cmd := &cobra.Command{
		Use:   "reindex <collection> [collection...]",
		Short: "Import every published document of the given collections",
		Long: `Import every published document of the given collections into the index.

Each document has its stale fragments deleted before the new ones are written.
With --purge the whole record kind is emptied first, which is required after a
change to the chunking rules or the index mapping.

Examples:
  indexctl reindex articles
  indexctl reindex articles weekly_news --purge --workers 8`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReindex(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.purge, "purge", false, "Delete every fragment of the record kind before importing")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Documents processed in parallel (default from IMPORT_WORKERS)")
	cmd.Flags().IntVar(&opts.pageSize, "page-size", 0, "Content store page size (default from IMPORT_PAGE_SIZE)")
	return cmd
}

func runReindex(cmd *cobra.Command, collections []string, opts reindexOptions) error {
	ctx := cmd.Context()
	c, err := loadComponents(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	workers := opts.workers
	if workers <= 0 {
		workers = c.Config.Sync.ImportWorkers
	}
	pageSize := opts.pageSize
	if pageSize <= 0 {
		pageSize = c.Config.Sync.ImportPageSize
	}

	var errs []error
	for _, name := range collections {
		report, err := c.Importer.Import(ctx, syncer.ImportOptions{
			Collection: content.Collection(name),
			Purge:      opts.purge,
			Workers:    workers,
			PageSize:   pageSize,
		})
		if report != nil {
			if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
				return perr
			}
		}
		if err != nil {
			applog.Error("[Import] Collection failed", "collection", name, "error", err)
			errs = append(errs, err)
			continue
		}
		if report.Failed > 0 {
			errs = append(errs, fmt.Errorf("%s: %d document(s) failed", name, report.Failed))
		}
	}
	return errors.Join(errs...)
}
