package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"rsi-divergence/internal/scanner"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "start the scanner service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup(cmd, true)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		svc, err := scanner.NewService(ctx, cfg, scanner.Options{})
		if err != nil {
			return err
		}
		defer func() {
			if err := svc.Close(); err != nil {
				log.WithError(err).Warn("[divbot] shutdown")
			}
		}()

		log.Infof("[divbot] metrics, health and signal stream on %s", cfg.MetricsAddr)
		return svc.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
