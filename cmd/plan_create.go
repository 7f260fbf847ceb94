package main

import (
	"github.com/spf13/cobra"
)

var (
	planCreateCustomer string
	planCreateName     string
)

var planCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a draft plan",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initService(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		plan, err := env.Service.CreatePlan(cmd.Context(), planCreateCustomer, planCreateName)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), plan)
	},
}

func init() {
	planCreateCmd.Flags().StringVar(&planCreateCustomer, "customer", "", "customer ID (required)")
	planCreateCmd.Flags().StringVar(&planCreateName, "name", "", "plan name (required)")
	_ = planCreateCmd.MarkFlagRequired("customer")
	_ = planCreateCmd.MarkFlagRequired("name")
	planCmd.AddCommand(planCreateCmd)
}
