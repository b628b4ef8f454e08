package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"postgrator/internal/cli"
	"postgrator/internal/dirs"
	"postgrator/internal/util"
	"postgrator/internal/util/format"
)

func newArtifactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "artifact <jobId> <schema.sql|rowcount.csv|errors.log>",
		Short:     "Download a report file of a finished job",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"schema.sql", "rowcount.csv", "errors.log"},
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := cli.ValidateJobID(args[0])
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			name := args[1]
			if err := cli.ValidateArtifact(name); err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}

			outDir, _ := cmd.Flags().GetString("out-dir")
			if outDir == "" {
				if outDir, err = dirs.ArtifactDir(jobID); err != nil {
					return &ExitError{Code: ExitCLIError, Err: err}
				}
			}

			e, err := newEnv(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			path := filepath.Join(filepath.Clean(outDir), name)
			n, err := util.WriteFileAtomic(path, func(w io.Writer) (int64, error) {
				return e.client.DownloadArtifact(cmd.Context(), jobID, name, w)
			})
			if err != nil {
				return classify(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved: %s (%s)\n", path, format.HumanizeBytes(n))
			return nil
		},
	}
	cmd.Flags().StringP("out-dir", "o", "", "Output directory (default: the data dir)")
	return cmd
}
