package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/foundry-bot/partner-research/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "partner-research",
	Short: "Partner intelligence research pipeline",
	Long:  "Gathers public-record intelligence about people and organizations from profile scrapes, directory and news search, social discovery, and encyclopedic lookup, then cross-references and merges it into a quality-scored profile.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
