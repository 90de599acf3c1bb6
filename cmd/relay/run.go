package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rahul/relay/internal/engine"
	"github.com/rahul/relay/internal/observability"
	"github.com/rahul/relay/internal/plan"
)

func runCmd() *cobra.Command {
	var (
		planFile string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "run [request]",
		Short: "Plan and execute a request",
		Long: `Plan a request with the model and execute it, or execute a plan file.

Examples:
  relay run "multiply 2+3 by 5+6"
  relay run --plan plan.yaml`,
		Args: func(cmd *cobra.Command, args []string) error {
			if planFile == "" && len(args) == 0 {
				return fmt.Errorf("a request or --plan is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			sys, err := buildSystem(ctx, cfg)
			if err != nil {
				return err
			}
			defer sys.Close()

			var res *engine.RunResult
			if planFile != "" {
				p, err := plan.LoadFile(planFile)
				if err != nil {
					return err
				}
				if len(args) > 0 {
					p.Request = strings.Join(args, " ")
				}
				if res, err = sys.runner.Run(ctx, p); err != nil {
					return err
				}
			} else {
				if _, res, err = sys.service.Handle(ctx, "", strings.Join(args, " ")); err != nil {
					return err
				}
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				reporter := observability.NewReporter(pretty, observability.TermWidth(os.Stdout))
				fmt.Fprint(cmd.OutOrStdout(), reporter.Run(res))
			}
			return res.OverallError
		},
	}

	cmd.Flags().StringVarP(&planFile, "plan", "p", "", "Execute a plan file (.json, .yaml, .hcl) instead of planning")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run result as JSON")
	return cmd
}
