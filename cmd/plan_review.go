package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	reviewDiffID  string
	reviewApprove bool
	reviewReject  bool
)

var planReviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Record the customer's decision on a diff",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if reviewApprove == reviewReject {
			return eris.New("exactly one of --approve or --reject is required")
		}

		ctx := cmd.Context()
		env, err := initService(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		diff, err := env.Service.ReviewDiff(ctx, reviewDiffID, reviewApprove)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), diff)
	},
}

func init() {
	planReviewCmd.Flags().StringVar(&reviewDiffID, "diff", "", "diff ID (required)")
	planReviewCmd.Flags().BoolVar(&reviewApprove, "approve", false, "approve the diff")
	planReviewCmd.Flags().BoolVar(&reviewReject, "reject", false, "reject the diff")
	_ = planReviewCmd.MarkFlagRequired("diff")
	planCmd.AddCommand(planReviewCmd)
}
