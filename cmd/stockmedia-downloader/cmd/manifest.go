package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"go-stockmedia-download/internal/manifest"
	"go-stockmedia-download/internal/models"
	"go-stockmedia-download/internal/paths"

	"github.com/spf13/cobra"
)

var manifestFailedOnlyFlag bool

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Work with run manifests",
}

var manifestShowCmd = &cobra.Command{
	Use:   "show [PATH]",
	Short: "Summarize a manifest (default <output>/_meta/manifest.json)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := paths.ManifestPath(globalConfig.OutputDir)
		if len(args) == 1 {
			path = args[0]
		}
		m, err := manifest.Read(path)
		if err != nil {
			return err
		}
		printManifest(cmd.OutOrStdout(), path, m, manifestFailedOnlyFlag)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(manifestCmd)
	manifestCmd.AddCommand(manifestShowCmd)
	manifestShowCmd.Flags().BoolVar(&manifestFailedOnlyFlag, "failed", false, "Only list failed downloads")
}

func printManifest(w io.Writer, path string, m models.Manifest, failedOnly bool) {
	fmt.Fprintf(w, "Manifest:  %s\n", path)
	fmt.Fprintf(w, "Generated: %s\n", m.GeneratedAt.Time().Local().Format(time.DateTime))
	if m.RunID != "" {
		fmt.Fprintf(w, "Run:       %s\n", m.RunID)
	}
	if m.Query != "" {
		fmt.Fprintf(w, "Query:     %s\n", m.Query)
	}

	perSource := make(map[models.Source][2]int)
	var order []models.Source
	for _, r := range m.Results {
		c, seen := perSource[r.Source]
		if !seen {
			order = append(order, r.Source)
		}
		c[1]++
		if r.OK {
			c[0]++
		}
		perSource[r.Source] = c
	}
	fmt.Fprintf(w, "Result:    %d/%d ok\n\n", m.Succeeded(), len(m.Results))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Source\tOK/Total")
	for _, s := range order {
		fmt.Fprintf(tw, "%s\t%d/%d\n", s, perSource[s][0], perSource[s][1])
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "Status\tSource\tKind\tTitle\tPath / Error")
	for _, r := range m.Results {
		if r.OK && failedOnly {
			continue
		}
		if r.OK {
			fmt.Fprintf(tw, "ok\t%s\t%s\t%s\t%s\n", r.Source, r.Kind, truncate(r.Title, maxTitleWidth), r.Path)
		} else {
			fmt.Fprintf(tw, "failed\t%s\t%s\t%s\t%s\n", r.Source, r.Kind, truncate(r.Title, maxTitleWidth), r.Error)
		}
	}
	tw.Flush()
}
