package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"postgrator/internal/browser"
	"postgrator/internal/cli"
	"postgrator/internal/model"
)

func newTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables <jobId>",
		Short: "List the migrated tables of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := cli.ValidateJobID(args[0])
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			e, err := newEnv(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			tables, err := e.client.ListTables(cmd.Context(), jobID)
			if err != nil {
				return classify(err)
			}
			out := cmd.OutOrStdout()
			t := table.New().Border(lipgloss.NormalBorder()).Headers("SCHEMA", "TABLE", "ROWS", "STATUS")
			for _, tm := range tables {
				t.Row(tm.Schema, tm.Name, strconv.FormatInt(tm.RowCount, 10), tableStatus(tm))
			}
			fmt.Fprintln(out, t.Render())
			printSummary(out, browser.Summarize(tables))
			return nil
		},
	}
}

func newRowsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rows <jobId> <table>",
		Short: "Print one page of a migrated table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := cli.ValidateJobID(args[0])
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			page, _ := cmd.Flags().GetInt("page")
			if err := cli.ValidatePage(page); err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			e, err := newEnv(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			b := browser.New(e.client, jobID, args[1], e.opts.PageSize, browser.WithLogger(e.log))
			rp, err := b.Goto(cmd.Context(), page)
			if err != nil {
				return classify(err)
			}

			out := cmd.OutOrStdout()
			t := table.New().Border(lipgloss.NormalBorder()).Headers(rp.Columns...)
			for _, row := range rp.Rows {
				cells := make([]string, len(row))
				for i, c := range row {
					cells[i] = model.Cell(c)
				}
				t.Row(cells...)
			}
			fmt.Fprintln(out, t.Render())
			if b.Page() != page {
				fmt.Fprintf(out, "page %d is out of range; showing page %d\n", page, b.Page())
			}
			fmt.Fprintf(out, "page %d/%d • %d rows\n", b.Page(), max(b.TotalPages(), 1), b.Total())
			return nil
		},
	}
	cmd.Flags().Int("page", 1, "1-based page number")
	return cmd
}

func tableStatus(t model.TableMetadata) string {
	switch {
	case t.Error != "":
		return "error: " + t.Error
	case !t.Copied:
		return "not copied"
	}
	return "ok"
}

func printSummary(out io.Writer, s browser.Summary) {
	fmt.Fprintf(out, "%d tables • %d rows • %d ok • %d failed\n", s.Tables, s.TotalRows, s.Succeeded, len(s.Failed))
	for _, t := range s.Failed {
		fmt.Fprintf(out, "  - %s: %s\n", t.Name, tableStatus(t))
	}
}
