package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rahul/relay/internal/observability"
	"github.com/rahul/relay/internal/store"
)

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run_id]",
		Short: "List recent runs, or show the steps of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
			st, err := store.Open(cfg.Audit.DBPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			reporter := observability.NewReporter(pretty, observability.TermWidth(os.Stdout))

			if len(args) == 1 {
				run, err := st.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				steps, err := st.GetSteps(ctx, run.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "RUN %s [%s] %s\n", run.ID, run.Status, run.StartedAt.Format("2006-01-02 15:04:05"))
				fmt.Fprintf(out, "  Request: %s\n", run.Request)
				if run.Error != "" {
					fmt.Fprintf(out, "  Error: %s\n", run.Error)
				}
				fmt.Fprintf(out, "  Answer: %s\n\n", run.Answer)
				fmt.Fprint(out, reporter.Steps(steps))
				return nil
			}

			runs, err := st.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(out, "%s  %-9s %2d steps  %s\n", r.StartedAt.Format("2006-01-02 15:04:05"), r.Status, r.Steps, r.ID)
				if r.Request != "" {
					fmt.Fprintf(out, "    %s\n", r.Request)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list")
	return cmd
}
