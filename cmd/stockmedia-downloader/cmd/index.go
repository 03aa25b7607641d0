package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"go-stockmedia-download/internal/config"
	"go-stockmedia-download/internal/index"

	"github.com/spf13/cobra"
)

var indexLimitFlag int

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Query the local index of downloaded assets",
}

var indexSearchCmd = &cobra.Command{
	Use:   "search [QUERY]",
	Short: "Search downloaded assets (e.g. \"fox\", \"source:pexels kind:video\")",
	Long: `Runs a query-string search over every asset downloaded so far. Fields:
title, query, license_hint (text) and source, kind, sha1, run_id (exact).
With no query every indexed asset matches.`,
	RunE: runIndexSearch,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexSearchCmd)
	indexSearchCmd.Flags().IntVarP(&indexLimitFlag, "limit", "l", 20, "Maximum hits to show")
}

func runIndexSearch(cmd *cobra.Command, args []string) error {
	path := config.IndexPath(globalConfig)
	idx, err := index.OpenOrCreateIndex(path)
	if err != nil {
		return err
	}
	defer idx.Close()

	q := strings.Join(args, " ")
	hits, total, err := index.Search(idx, q, indexLimitFlag)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if total == 0 {
		fmt.Fprintln(out, "No indexed assets match.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Score\tSource\tKind\tTitle\tPath")
	fmt.Fprintln(tw, "-----\t------\t----\t-----\t----")
	for _, h := range hits {
		fmt.Fprintf(tw, "%.3f\t%s\t%s\t%s\t%s\n", h.Score, h.Source, h.Kind, truncate(h.Title, maxTitleWidth), h.Path)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nShowing %d of %d hits\n", len(hits), total)
	return nil
}
