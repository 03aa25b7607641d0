package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"go-stockmedia-download/internal/helpers"
	"go-stockmedia-download/internal/models"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the supported catalogs and whether they are usable",
	Run: func(cmd *cobra.Command, args []string) {
		printSources(cmd.OutOrStdout(), globalConfig)
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

type sourceRow struct {
	ID       models.Source
	Name     string
	Family   string
	Status   string
	Selected bool
}

func sourceRows(cfg models.Config) []sourceRow {
	title := cases.Title(language.English)
	rows := make([]sourceRow, 0, len(models.AllSources()))
	for _, s := range models.AllSources() {
		row := sourceRow{
			ID:       s,
			Name:     title.String(s.String()),
			Selected: len(cfg.Sources) == 0 || helpers.StringSliceContains(cfg.Sources, s.String()),
		}
		switch {
		case s.Structured() && cfg.Credentials.For(s) != "":
			row.Family, row.Status = "api", "key configured"
		case s.Structured():
			row.Family, row.Status = "api", fmt.Sprintf("no key (set %s_KEY)", strings.ToUpper(s.String()))
		case cfg.NoScrape:
			row.Family, row.Status = "scrape", "disabled (--no-scrape)"
		default:
			row.Family, row.Status = "scrape", "no key needed"
		}
		rows = append(rows, row)
	}
	return rows
}

func printSources(w io.Writer, cfg models.Config) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tName\tFamily\tSelected\tStatus")
	fmt.Fprintln(tw, "--\t----\t------\t--------\t------")
	for _, r := range sourceRows(cfg) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", r.ID, r.Name, r.Family, r.Selected, r.Status)
	}
	tw.Flush()
}
