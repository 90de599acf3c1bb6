package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rahul/relay/internal/plan"
)

func planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Inspect plan files",
		Long:  "Validate plan files and show how they would be scheduled, without executing them.",
	}

	load := func(path string) (plan.Plan, error) {
		p, err := plan.LoadFile(path)
		if err != nil {
			return plan.Plan{}, err
		}
		return plan.Validate(p, catalogHandlers())
	}

	validateCmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a plan against the known handlers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "PLAN OK: %d steps\n%s", p.Len(), p.Describe())
			return nil
		},
	}

	wavesCmd := &cobra.Command{
		Use:   "waves <file>",
		Short: "Print the waves a plan executes in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := load(args[0])
			if err != nil {
				return err
			}
			waves, err := plan.Waves(p)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, wave := range waves {
				tasks := make([]string, len(wave))
				for j, idx := range wave {
					tasks[j] = fmt.Sprintf("%d:%s", idx, p.Steps[idx].HandlerID)
				}
				fmt.Fprintf(out, "wave %d: %s\n", i, strings.Join(tasks, ", "))
			}
			return nil
		},
	}

	dotCmd := &cobra.Command{
		Use:   "dot <file>",
		Short: "Export a plan as a Graphviz DOT graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := load(args[0])
			if err != nil {
				return err
			}
			name := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			return plan.ExportDOT(cmd.OutOrStdout(), p, name)
		},
	}

	cmd.AddCommand(validateCmd, wavesCmd, dotCmd)
	return cmd
}
