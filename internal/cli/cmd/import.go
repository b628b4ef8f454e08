package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"postgrator/internal/api"
	"postgrator/internal/cli"
	"postgrator/internal/ui"
)

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.bak>",
		Short: "Upload a SQL Server backup and watch the migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cli.ValidateBackup(args[0])
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			pgURI, _ := cmd.Flags().GetString("pg-uri")
			schema, _ := cmd.Flags().GetString("schema")
			if pgURI == "" {
				return &ExitError{Code: ExitCLIError, Err: fmt.Errorf("--pg-uri is required")}
			}

			e, err := newEnv(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			upload := func(ctx context.Context) (string, error) {
				resp, err := e.client.Import(ctx, api.ImportRequest{FilePath: path, PgURI: pgURI, Schema: schema})
				if err != nil {
					return "", err
				}
				e.log.WithField("job_id", resp.JobID).Info("upload accepted")
				return resp.JobID, nil
			}
			return watchJob(cmd.Context(), cmd.OutOrStdout(), e, ui.Config{Upload: upload})
		},
	}
	cmd.Flags().String("pg-uri", "", "Target PostgreSQL connection URI")
	cmd.Flags().String("schema", "public", "Target PostgreSQL schema")
	return cmd
}

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Start a simulated migration and watch it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			upload := func(ctx context.Context) (string, error) {
				resp, err := e.client.ImportDemo(ctx)
				if err != nil {
					return "", err
				}
				return resp.JobID, nil
			}
			return watchJob(cmd.Context(), cmd.OutOrStdout(), e, ui.Config{Upload: upload})
		},
	}
}
