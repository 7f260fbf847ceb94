package main

import (
	"github.com/spf13/cobra"
)

var applyDiffID string

var planApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply an approved diff to the live jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initService(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Service.ApplyDiff(ctx, applyDiffID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	planApplyCmd.Flags().StringVar(&applyDiffID, "diff", "", "diff ID (required)")
	_ = planApplyCmd.MarkFlagRequired("diff")
	planCmd.AddCommand(planApplyCmd)
}
