package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"postgrator/internal/util"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the migration server is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Server:  %s\n", e.opts.Server)
			if ws, err := util.StreamURL(e.opts.Server, "ID"); err == nil {
				fmt.Fprintf(out, "Stream:  %s\n", strings.Replace(ws, "/ID/", "/<jobId>/", 1))
			}
			if err := e.client.Ping(cmd.Context()); err != nil {
				return classify(err)
			}
			fmt.Fprintln(out, "Status:  reachable")
			return nil
		},
	}
}
