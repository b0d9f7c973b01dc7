package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pressindex/internal/domain/index"
)

type searchOptions struct {
	kinds  []string
	limit  int
	format string // text | json
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid query against the index",
		Long: `Run a hybrid query against the index.

Keyword search runs first for each record kind; kinds without keyword hits
fall back to semantic nearest-neighbour search.

Examples:
  indexctl search "digital skills training"
  indexctl search "budget" --kind news --limit 5 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.kinds, "kind", "k", nil, "Record kinds to search: article, news (repeatable)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	return cmd
}

func parseKinds(raw []string) ([]index.RecordKind, error) {
	var kinds []index.RecordKind
	for _, k := range raw {
		kind, ok := index.ParseRecordKind(strings.TrimSpace(k))
		if !ok {
			return nil, fmt.Errorf("unknown kind %q: want article or news", k)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	kinds, err := parseKinds(opts.kinds)
	if err != nil {
		return err
	}
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("invalid --format %q: want text or json", opts.format)
	}

	c, err := loadComponents(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	result, err := c.Engine.Search(cmd.Context(), &index.Query{Text: query, Kinds: kinds, Limit: opts.limit})
	if err != nil {
		return err
	}
	if opts.format == "json" {
		return printJSON(cmd.OutOrStdout(), result)
	}

	out := cmd.OutOrStdout()
	if len(result.Results) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}
	for i, r := range result.Results {
		distance := "-"
		if r.Distance != nil {
			distance = fmt.Sprintf("%.4f", *r.Distance)
		}
		fmt.Fprintf(out, "%2d. [%s/%s] %s\n    %s\n    distance=%s doc=%s part=%d\n",
			i+1, r.Kind, r.MatchType, r.Title, r.URL, distance, r.DocumentID, r.Part)
	}
	fmt.Fprintf(out, "\n%d result(s) in %dms\n", len(result.Results), result.ElapsedMs)
	return nil
}
