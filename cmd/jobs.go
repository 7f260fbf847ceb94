package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/jobplan/internal/model"
	"github.com/sells-group/jobplan/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect live jobs",
}

var jobsFilter struct {
	customer string
	plan     string
	key      string
	source   string
	status   string
	limit    int
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initService(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		list, err := env.Service.ListJobs(ctx, store.JobFilter{
			CustomerID:     jobsFilter.customer,
			PlanID:         jobsFilter.plan,
			JobKey:         jobsFilter.key,
			Source:         model.JobSource(jobsFilter.source),
			CustomerStatus: model.CustomerStatus(jobsFilter.status),
			Limit:          jobsFilter.limit,
		})
		if err != nil {
			return err
		}
		if list == nil {
			list = []model.Job{}
		}
		return printJSON(cmd.OutOrStdout(), list)
	},
}

func init() {
	f := jobsListCmd.Flags()
	f.StringVar(&jobsFilter.customer, "customer", "", "filter by customer ID")
	f.StringVar(&jobsFilter.plan, "plan", "", "filter by plan ID")
	f.StringVar(&jobsFilter.key, "key", "", "filter by job key")
	f.StringVar(&jobsFilter.source, "source", "", "filter by source (plan or import)")
	f.StringVar(&jobsFilter.status, "status", "", "filter by customer status")
	f.IntVar(&jobsFilter.limit, "limit", 100, "maximum jobs to list")
	jobsCmd.AddCommand(jobsListCmd)
	rootCmd.AddCommand(jobsCmd)
}
