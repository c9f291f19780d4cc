package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/fpang/poetry-camera/internal/store"
)

var (
	limitFlag int
	jsonFlag  bool
	statsFlag time.Duration
)

var runsCmd = &cobra.Command{
	Use:   "runs [id]",
	Short: "List recorded runs or show one",
	Long: `List the most recent runs from the ledger, newest first, or show the full
record of one run. --stats prints a count per result over a time window.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		if cfg.Storage.LedgerPath == "" {
			return fmt.Errorf("no ledger configured (storage.ledger_path)")
		}
		ledger, err := store.OpenSQLite(cfg.Storage.LedgerPath)
		if err != nil {
			return err
		}
		defer ledger.Close()

		if len(args) == 1 {
			run, err := ledger.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %s not found", args[0])
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		}

		if statsFlag > 0 {
			counts, err := ledger.Stats(ctx, time.Now().Add(-statsFlag))
			if err != nil {
				return err
			}
			results := make([]string, 0, len(counts))
			for r := range counts {
				results = append(results, r)
			}
			sort.Strings(results)
			for _, r := range results {
				fmt.Printf("%-20s %d\n", r, counts[r])
			}
			return nil
		}

		runs, err := ledger.ListRuns(ctx, limitFlag)
		if err != nil {
			return err
		}
		if jsonFlag {
			return json.NewEncoder(os.Stdout).Encode(runs)
		}
		for _, r := range runs {
			printed := "-"
			if r.Printed {
				printed = "printed"
			}
			fmt.Printf("%s  %s  %-10s %-18s %s\n",
				r.StartedAt.Local().Format(time.DateTime), r.ShortID(), r.Source, r.Result, printed)
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVarP(&limitFlag, "limit", "n", 20, "Number of runs to list")
	runsCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print runs as JSON")
	runsCmd.Flags().DurationVar(&statsFlag, "stats", 0, "Count runs per result over this window, e.g. 24h")
}
