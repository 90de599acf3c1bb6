// Package main provides the relay CLI entrypoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rahul/relay/pkg/config"
)

var (
	version    = "0.1.0"
	configPath string
	pretty     bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "relay",
		Short: "Plan a request into dependent steps and run them in parallel waves",
		Long: `relay turns a request into a plan of steps, each assigned to a handler, and
executes the plan wave by wave: independent steps run concurrently and every
step receives the condensed results of the steps it depends on.

Use 'relay run "<request>"' for a one-off request and 'relay serve' to answer
chat messages.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "Config file (.json, .yaml)")
	root.PersistentFlags().BoolVar(&pretty, "pretty", true, "Colour terminal output")

	root.AddCommand(runCmd(), planCmd(), serveCmd(), historyCmd())
	return root
}

// loadConfig reads --config. A missing default file falls back to the
// built-in defaults; a missing explicit file is an error.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") {
		return config.Default(), nil
	}
	return nil, err
}
