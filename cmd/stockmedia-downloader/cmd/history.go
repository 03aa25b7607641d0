package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"go-stockmedia-download/internal/config"
	"go-stockmedia-download/internal/database"
	"go-stockmedia-download/internal/helpers"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var historyLimitFlag int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect previous runs recorded in the history database",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [RUN_ID]",
	Short: "Show every outcome of one run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete [RUN_ID]",
	Short: "Remove a run from the history (files are kept)",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

var historyFindCmd = &cobra.Command{
	Use:   "find [SHA1]",
	Short: "Find every recorded download of a file by its full SHA-1",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryFind,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyFindCmd)
	historyListCmd.Flags().IntVarP(&historyLimitFlag, "limit", "l", 20, "Maximum runs to list (0 for all)")
}

func openHistory() (*database.DB, error) {
	path := config.HistoryPath(globalConfig)
	log.Debugf("Opening history database at %s", path)
	db, err := database.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history at %s: %w", path, err)
	}
	return db, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	db, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(historyLimitFlag)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Run ID\tStarted\tQuery\tSources\tOK/Total\tFound")
	fmt.Fprintln(tw, "------\t-------\t-----\t-------\t--------\t-----")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%d\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Query,
			strings.Join(r.Sources, ","), r.OK, r.Total, r.Found)
	}
	return tw.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	db, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := db.GetRun(args[0])
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("no run with id %s", args[0])
	}
	if err != nil {
		return err
	}
	outcomes, err := db.RunOutcomes(run.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:      %s\n", run.ID)
	fmt.Fprintf(out, "Query:    %s\n", run.Query)
	fmt.Fprintf(out, "Sources:  %s\n", strings.Join(run.Sources, ", "))
	fmt.Fprintf(out, "Output:   %s\n", run.OutputDir)
	fmt.Fprintf(out, "Manifest: %s\n", run.ManifestPath)
	fmt.Fprintf(out, "Took:     %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(out, "Result:   %d/%d ok (%d found)\n\n", run.OK, run.Total, run.Found)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Status\tSource\tKind\tSize\tPath / Error")
	fmt.Fprintln(tw, "------\t------\t----\t----\t------------")
	for _, o := range outcomes {
		if o.OK {
			fmt.Fprintf(tw, "ok\t%s\t%s\t%s\t%s\n", o.Source, o.Kind, helpers.BytesToSize(uint64(o.Bytes)), o.Path)
		} else {
			fmt.Fprintf(tw, "failed\t%s\t%s\t-\t%s\n", o.Source, o.Kind, o.Error)
		}
	}
	return tw.Flush()
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	db, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.DeleteRun(args[0]); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("no run with id %s", args[0])
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
	return nil
}

func runHistoryFind(cmd *cobra.Command, args []string) error {
	db, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()
	return findBySHA1(cmd.OutOrStdout(), db, args[0])
}

func findBySHA1(w io.Writer, db *database.DB, digest string) error {
	digest = strings.ToLower(strings.TrimSpace(digest))
	if !helpers.IsSHA1Hex(digest) {
		return fmt.Errorf("%q is not a 40-character hex SHA-1", digest)
	}
	matches, err := db.FindBySHA1(digest)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		fmt.Fprintf(w, "No downloads recorded for %s\n", digest)
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Source\tKind\tTitle\tPath")
	for _, o := range matches {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.Source, o.Kind, truncate(o.Title, maxTitleWidth), o.Path)
	}
	return tw.Flush()
}
