package main

import (
	"path"

	"github.com/spf13/cobra"
)

var (
	uploadPlanID   string
	uploadFileURL  string
	uploadFileName string
	uploadParse    bool
)

var planUploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Register a plan file as the next version of a plan",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initService(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		name := uploadFileName
		if name == "" {
			name = path.Base(uploadFileURL)
		}

		v, err := env.Service.CreateVersion(ctx, uploadPlanID, name, uploadFileURL)
		if err != nil {
			return err
		}
		if !uploadParse {
			return printJSON(cmd.OutOrStdout(), v)
		}

		res, err := env.Service.ParseVersion(ctx, uploadPlanID, v.ID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"version": v,
			"parse":   parseOutput(res),
		})
	},
}

func init() {
	planUploadCmd.Flags().StringVar(&uploadPlanID, "plan", "", "plan ID (required)")
	planUploadCmd.Flags().StringVar(&uploadFileURL, "url", "", "http(s) or ftp URL of the plan file (required)")
	planUploadCmd.Flags().StringVar(&uploadFileName, "name", "", "source file name (default from URL)")
	planUploadCmd.Flags().BoolVar(&uploadParse, "parse", false, "parse the version after registering it")
	_ = planUploadCmd.MarkFlagRequired("plan")
	_ = planUploadCmd.MarkFlagRequired("url")
	planCmd.AddCommand(planUploadCmd)
}
