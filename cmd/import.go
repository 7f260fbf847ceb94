package main

import (
	"path"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/jobplan/internal/planfile"
)

var (
	importCustomer string
	importFileURL  string
	importFileName string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import ad-hoc jobs from a file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initService(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		name := importFileName
		if name == "" {
			name = path.Base(importFileURL)
		}

		res, err := env.Service.ImportJobs(ctx, importCustomer, name, importFileURL)
		if err != nil {
			return err
		}
		if err := printJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		if res.Status == planfile.StatusFailed {
			return errParseFailed
		}

		zap.L().Info("import complete",
			zap.Int("created", res.CreatedCount),
			zap.String("file", name),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importCustomer, "customer", "", "customer ID (required)")
	importCmd.Flags().StringVar(&importFileURL, "url", "", "http(s) or ftp URL of the job file (required)")
	importCmd.Flags().StringVar(&importFileName, "name", "", "source file name (default from URL)")
	_ = importCmd.MarkFlagRequired("customer")
	_ = importCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(importCmd)
}
