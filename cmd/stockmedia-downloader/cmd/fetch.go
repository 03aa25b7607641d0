package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go-stockmedia-download/internal/config"
	"go-stockmedia-download/internal/models"
	"go-stockmedia-download/internal/pipeline"

	"github.com/fatih/color"
	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// --- Package Level Variables for Fetch/Search Flags ---
var (
	fetchQueryFlag       string
	fetchItemsFlag       int
	fetchWorkersFlag     int
	fetchSourcesFlag     []string
	fetchNoScrapeFlag    bool
	fetchUnsplashKeyFlag string
	fetchPexelsKeyFlag   string
	fetchPixabayKeyFlag  string
	fetchNoHistoryFlag   bool
	fetchNoIndexFlag     bool
	fetchNoMetricsFlag   bool
	fetchSelectFlag      bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Search the selected catalogs and download the results",
	Long: `Searches every selected catalog concurrently, waits for all of them, then
downloads the gathered assets into <output>/images and <output>/videos.
A manifest of every attempt is written to <output>/_meta/manifest.json.`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	addSearchFlags(fetchCmd)
	fetchCmd.Flags().IntVarP(&fetchWorkersFlag, "threads", "t", config.DefaultWorkers, "Download threads (0 picks from CPU count)")
	fetchCmd.Flags().BoolVar(&fetchSelectFlag, "select", false, "Show the results and choose which to download")
	fetchCmd.Flags().BoolVar(&fetchNoHistoryFlag, "no-history", false, "Do not record this run in the history database")
	fetchCmd.Flags().BoolVar(&fetchNoIndexFlag, "no-index", false, "Do not add downloads to the search index")
	fetchCmd.Flags().BoolVar(&fetchNoMetricsFlag, "no-metrics", false, "Do not write the metrics textfile")
}

// addSearchFlags registers the flags shared by fetch and search.
func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&fetchQueryFlag, "query", "q", config.DefaultQuery, "Search query/keyword")
	cmd.Flags().IntVarP(&fetchItemsFlag, "items", "n", config.DefaultItems, "Items per selected source")
	cmd.Flags().StringSliceVarP(&fetchSourcesFlag, "sources", "s", config.DefaultSources(), "Comma list of sources")
	cmd.Flags().BoolVar(&fetchNoScrapeFlag, "no-scrape", false, "Disable scraping sources (Coverr, Mixkit, Videvo)")
	cmd.Flags().StringVar(&fetchUnsplashKeyFlag, "unsplash-key", "", "Unsplash API key (overrides env)")
	cmd.Flags().StringVar(&fetchPexelsKeyFlag, "pexels-key", "", "Pexels API key (overrides env)")
	cmd.Flags().StringVar(&fetchPixabayKeyFlag, "pixabay-key", "", "Pixabay API key (overrides env)")
}

// validatedConfig applies Validate to a copy of the global config. A false
// return means there is nothing to do and the message was already printed.
func validatedConfig(cmd *cobra.Command) (models.Config, []models.Source, bool, error) {
	cfg := globalConfig
	ids, err := config.Validate(&cfg)
	if errors.Is(err, config.ErrNoSources) {
		log.Warn("No valid sources selected. Exiting.")
		fmt.Fprintln(cmd.OutOrStdout(), "No valid sources selected. Exiting.")
		return cfg, nil, false, nil
	}
	if err != nil {
		return cfg, nil, false, err
	}
	return cfg, ids, true, nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, ids, ok, err := validatedConfig(cmd)
	if !ok {
		return err
	}

	outDir, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("invalid output dir %s: %w", cfg.OutputDir, err)
	}
	cfg.OutputDir = outDir

	p, err := pipeline.New(cfg, pipeline.Options{})
	if err != nil {
		return err
	}
	defer p.Close()

	// The live writer starts with the first outcome so it never overwrites the selection prompt.
	writer := uilive.New()
	var startOnce sync.Once
	started := false

	req := pipeline.Request{
		Query:     cfg.Query,
		Sources:   ids,
		Count:     cfg.Items,
		OutputDir: outDir,
		Workers:   cfg.Workers,
		Progress: func(done, total int, o models.DownloadOutcome) {
			startOnce.Do(func() {
				writer.Start()
				started = true
			})
			status := "ok"
			if !o.OK {
				status = "failed"
			}
			fmt.Fprintf(writer, "Downloading: %d/%d (last: %s %s %s)\n", done, total, o.Source, o.Kind, status)
		},
	}
	if fetchSelectFlag {
		req.Select = func(assets []models.Asset) []models.Asset {
			return promptSelection(os.Stdin, cmd.OutOrStdout(), assets)
		}
	}

	summary := p.Run(cmd.Context(), req)
	if started {
		writer.Stop()
	}
	printSummary(cmd, summary, outDir)
	return nil
}

func printSummary(cmd *cobra.Command, s pipeline.Summary, outDir string) {
	out := cmd.OutOrStdout()
	if s.Found == 0 {
		color.New(color.FgYellow).Fprintln(out, "No assets found.")
		return
	}
	if s.Total == 0 {
		color.New(color.FgYellow).Fprintln(out, "Nothing selected for download.")
		return
	}
	line := color.New(color.FgGreen)
	if s.OK < s.Total {
		line = color.New(color.FgYellow)
	}
	line.Fprintf(out, "Done. Downloaded %d/%d assets to: %s\n", s.OK, s.Total, outDir)
	if s.ManifestPath != "" {
		fmt.Fprintf(out, "Manifest: %s\n", s.ManifestPath)
	}
	if s.RunID != "" {
		fmt.Fprintf(out, "Run ID: %s\n", s.RunID)
	}
}
