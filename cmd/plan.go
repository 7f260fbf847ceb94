package main

import (
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage plans, versions and diffs",
}

func init() {
	rootCmd.AddCommand(planCmd)
}
