package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/jobplan/internal/planfile"
)

var (
	parsePlanID    string
	parseVersionID string
)

var errParseFailed = eris.New("parse failed")

var planParseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Fetch and parse a plan version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initService(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Service.ParseVersion(ctx, parsePlanID, parseVersionID)
		if err != nil {
			return err
		}
		if err := printJSON(cmd.OutOrStdout(), parseOutput(res)); err != nil {
			return err
		}
		if res.Status == planfile.StatusFailed {
			return errParseFailed
		}
		return nil
	},
}

// parseOutput drops the lines from a parse result; they are stored, not
// printed.
func parseOutput(res *planfile.ParseResult) map[string]any {
	if res.Status == planfile.StatusFailed {
		return map[string]any{"status": res.Status, "errors": res.Errors}
	}
	return map[string]any{"status": res.Status, "rowsCount": res.RowsCount()}
}

func init() {
	planParseCmd.Flags().StringVar(&parsePlanID, "plan", "", "plan ID (required)")
	planParseCmd.Flags().StringVar(&parseVersionID, "version", "", "plan version ID (required)")
	_ = planParseCmd.MarkFlagRequired("plan")
	_ = planParseCmd.MarkFlagRequired("version")
	planCmd.AddCommand(planParseCmd)
}
