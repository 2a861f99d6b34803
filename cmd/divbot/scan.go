package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"rsi-divergence/internal/divergence"
	"rsi-divergence/internal/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "run one detection cycle and print the latest candles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, _ := cmd.Flags().GetInt("rows")

		cfg, err := setup(cmd, false)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		svc, err := scanner.NewService(ctx, cfg, scanner.Options{DryRun: true})
		if err != nil {
			return err
		}
		defer func() {
			if err := svc.Close(); err != nil {
				log.WithError(err).Warn("[divbot] close")
			}
		}()

		res, err := svc.Scanner.RunCycle(ctx)
		if err != nil && !errors.Is(err, divergence.ErrMalformedSeries) {
			return err
		}

		window := svc.Scanner.Window()
		if len(window) > rows {
			window = window[len(window)-rows:]
		}
		renderCandles(os.Stdout, cfg.Symbol, cfg.TF(), window)

		if err != nil {
			fmt.Fprintf(os.Stdout, "\nseries rejected: %v\n", err)
			return nil
		}
		if res.Signal == nil {
			fmt.Fprintln(os.Stdout, "\nno divergence on the latest candle")
			return nil
		}
		renderSignal(os.Stdout, res.Signal)
		return nil
	},
}

func init() {
	scanCmd.Flags().Int("rows", 20, "number of recent candles to print")
	rootCmd.AddCommand(scanCmd)
}
