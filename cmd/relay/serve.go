package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rahul/relay/internal/gateway"
	"github.com/rahul/relay/internal/observability"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Answer chat messages through the configured gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			tgCfg, ok := cfg.GetTelegramConfig()
			if !ok {
				return fmt.Errorf("telegram gateway is not enabled or token is missing")
			}

			ctx := cmd.Context()
			sys, err := buildSystem(ctx, cfg)
			if err != nil {
				return err
			}
			defer sys.Close()
			sys.serveMetrics(ctx)

			tg, err := gateway.NewTelegramGateway(tgCfg.Token, sys.service, sys.logger)
			if err != nil {
				return err
			}
			reporter := observability.NewReporter(false, 0)
			tg.Status = func() string {
				return reporter.Status(sys.status.Snapshot())
			}

			sys.logger.Info("gateway started", "gateway", "telegram")
			if err := tg.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			sys.logger.Info("gateway stopped")
			return nil
		},
	}
}
