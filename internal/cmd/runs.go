package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/masahif/webripper/internal/ripper"
	"github.com/masahif/webripper/internal/storage"
)

func newRunsCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [RUN_ID]",
		Short: "List recorded rips, or the resources of one rip",
		Long: `Lists the rips recorded in the run journal, most recent first.
With a run id, lists the outcome of every resource of that rip.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return runRuns(cmd.OutOrStdout(), v.GetString("database_path"), limit, args)
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "Number of runs to list (0=all)")
	return cmd
}

func runRuns(w io.Writer, dbPath string, limit int, args []string) error {
	if dbPath == "" {
		return fmt.Errorf("no run journal configured: set --database or database_path")
	}
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("run journal %s: %w", dbPath, err)
	}
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open run journal: %w", err)
	}
	defer func() { _ = store.Close() }()

	if len(args) == 1 {
		return printRun(w, store, args[0])
	}
	runs, err := store.ListRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tMODE\tRESOURCES\tDOWNLOADED\tFAILURES\tURL")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			run.ID,
			run.StartedAt.Local().Format(time.DateTime),
			run.Status,
			run.Mode,
			run.Resources,
			run.Downloaded,
			run.Failures,
			run.SeedURI,
		)
	}
	return tw.Flush()
}

func printRun(w io.Writer, store *storage.SQLiteStorage, runID string) error {
	run, err := store.GetRun(runID)
	if err != nil {
		return err
	}
	recs, err := store.ListResources(runID)
	if err != nil {
		return err
	}

	counts, err := store.OutcomeCounts(runID)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Run %s: %s %s -> %s (%s)\n", run.ID, run.Mode, run.SeedURI, run.RootPath, run.Status)
	if run.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", run.Error)
	}
	fmt.Fprintf(w, "Outcomes: %s\n\n", formatCounts(counts))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OUTCOME\tDEPTH\tSIZE\tTTFB\tURL\tERROR")
	for _, rec := range recs {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			rec.Outcome,
			rec.Depth,
			humanize.Bytes(uint64(rec.Bytes)),
			rec.TTFB,
			rec.URI,
			rec.Error,
		)
	}
	return tw.Flush()
}

func formatCounts(counts map[ripper.Outcome]int) string {
	if len(counts) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(counts))
	for outcome, n := range counts {
		parts = append(parts, fmt.Sprintf("%s=%d", outcome, n))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
