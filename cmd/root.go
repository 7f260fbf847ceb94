package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/jobplan/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "jobplan",
	Short: "Plan ingestion, diffing and job apply",
	Long:  "Parses customer plan files into hashed lines, diffs plan versions by job key, and applies approved diffs to the live job set.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		if err := cfg.Validate(cmd.Name()); err != nil {
			return err
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
