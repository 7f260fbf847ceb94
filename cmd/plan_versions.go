package main

import (
	"github.com/spf13/cobra"
)

var versionsPlanID string

var planVersionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List a plan's uploaded versions and their parse status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initService(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		versions, err := env.Service.ListVersions(ctx, versionsPlanID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), versions)
	},
}

func init() {
	planVersionsCmd.Flags().StringVar(&versionsPlanID, "plan", "", "plan ID (required)")
	_ = planVersionsCmd.MarkFlagRequired("plan")
	planCmd.AddCommand(planVersionsCmd)
}
