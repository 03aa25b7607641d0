package cmd

import (
	"encoding/json"
	"fmt"

	"go-stockmedia-download/internal/models"
	"go-stockmedia-download/internal/pipeline"

	"github.com/spf13/cobra"
)

var searchJSONFlag bool

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "List matching assets without downloading them",
	RunE:  runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	addSearchFlags(searchCmd)
	searchCmd.Flags().BoolVar(&searchJSONFlag, "json", false, "Print the assets as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, ids, ok, err := validatedConfig(cmd)
	if !ok {
		return err
	}
	// Nothing is downloaded, so none of the run stores are needed.
	cfg.History.Enabled = false
	cfg.Index.Enabled = false
	cfg.Metrics.Enabled = false
	cfg.LogApiRequests = false

	p, err := pipeline.New(cfg, pipeline.Options{})
	if err != nil {
		return err
	}
	defer p.Close()

	assets := p.Search(cmd.Context(), ids, cfg.Query, cfg.Items)
	out := cmd.OutOrStdout()
	if searchJSONFlag {
		if assets == nil {
			assets = []models.Asset{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(assets)
	}
	if len(assets) == 0 {
		fmt.Fprintln(out, "No assets found.")
		return nil
	}
	printAssetTable(out, assets)
	fmt.Fprintf(out, "\n%d assets from %d sources\n", len(assets), len(ids))
	return nil
}
