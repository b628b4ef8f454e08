package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"postgrator/internal/config"
)

const (
	ExitOK          = 0
	ExitCLIError    = 1
	ExitUnreachable = 2
	ExitJobFailed   = 3
)

// ExitError wraps an error with a process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "postgrator",
		Short: "Watch SQL Server to PostgreSQL migration jobs",
		Long: "Postgrator drives a migration server: upload a .bak backup, follow the job " +
			"stage by stage with its live log, then browse the migrated tables and download " +
			"the reports.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Init(cmd.Root()); err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			return nil
		},
	}

	bindPersistentFlags(root.PersistentFlags())

	root.AddCommand(newWatchCmd())
	root.AddCommand(newImportCmd())
	root.AddCommand(newDemoCmd())
	root.AddCommand(newTablesCmd())
	root.AddCommand(newRowsCmd())
	root.AddCommand(newArtifactCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newCompletionCmd())

	return root
}

func bindPersistentFlags(fs *pflag.FlagSet) {
	fs.StringP("server", "s", "http://localhost:8001", "Migration server base URL")
	fs.Duration("timeout", 30*time.Second, "HTTP request timeout")
	fs.Duration("upload-timeout", 0, "Timeout for backup uploads (0 = no limit)")
	fs.Int("page-size", 100, "Rows per page when browsing tables")
	fs.Bool("no-ui", false, "Disable TUI; use plain textual output")
	fs.String("log-level", "warn", "Log level: trace, debug, info, warn, error")
	fs.String("log-format", "text", "Log format: text, json")
	fs.Int("log-limit", 0, "Keep at most N job log lines in the TUI (0 = all)")
	fs.String("reconnect", "none", "Push channel reconnect policy: none, fixed, backoff")
	fs.Duration("reconnect-interval", 2*time.Second, "Delay between reconnect attempts (fixed) or first delay (backoff)")
	fs.Duration("reconnect-max-interval", 30*time.Second, "Upper bound for backoff delays")
	fs.Int("reconnect-attempts", 0, "Give up after N reconnect attempts (0 = unlimited)")
	fs.Duration("grace-delay", 1500*time.Millisecond, "Delay between a successful finish and the results view")
}

// Execute runs the CLI with the provided context.
func Execute(ctx context.Context) error {
	root := newRootCmd()
	return root.ExecuteContext(ctx)
}
