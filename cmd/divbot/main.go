// Command divbot watches one NSE instrument for RSI divergence and alerts
// on every new signal.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"rsi-divergence/config"
	"rsi-divergence/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "divbot",
	Short: "RSI divergence scanner for Angel One SmartAPI",

	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().String("env-file", "", "dotenv file to load (default .env when present)")
}

// setup loads and validates the configuration and initialises logging.
// With logFile false only stdout logging is configured.
func setup(cmd *cobra.Command, logFile bool) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}

	file := ""
	if logFile {
		file = cfg.LogFile
	}
	if _, err := logger.Init("divbot", cfg.LogLevel, file); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.WithError(err).Error("divbot failed")
		os.Exit(1)
	}
}
