package main

import (
	"github.com/spf13/cobra"
)

var (
	diffPlanID string
	diffFrom   string
	diffTo     string
	diffItems  bool
)

var planDiffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Diff two plan versions",
	Long:  "Diffs --to against --from. Without --from every job in --to is added; --from latest diffs against the last applied version of the plan.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initService(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var from *string
		if diffFrom != "" {
			from = &diffFrom
		}
		diff, items, err := env.Service.ComputeDiff(ctx, diffPlanID, from, diffTo)
		if err != nil {
			return err
		}
		if diffItems {
			return printJSON(cmd.OutOrStdout(), map[string]any{"diff": diff, "items": items})
		}
		return printJSON(cmd.OutOrStdout(), diff)
	},
}

func init() {
	planDiffCmd.Flags().StringVar(&diffPlanID, "plan", "", "plan ID (required)")
	planDiffCmd.Flags().StringVar(&diffFrom, "from", "", "base version ID, or \"latest\" for the last applied version")
	planDiffCmd.Flags().StringVar(&diffTo, "to", "", "target version ID (required)")
	planDiffCmd.Flags().BoolVar(&diffItems, "items", false, "include diff items in the output")
	_ = planDiffCmd.MarkFlagRequired("plan")
	_ = planDiffCmd.MarkFlagRequired("to")
	planCmd.AddCommand(planDiffCmd)
}
