package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"postgrator/internal/api"
	"postgrator/internal/config"
	"postgrator/internal/dirs"
	"postgrator/internal/logging"
	"postgrator/internal/model"
	"postgrator/internal/stream"
)

// env bundles what every command needs once flags and config are resolved.
type env struct {
	opts    model.Options
	log     *logrus.Logger
	client  *api.Client
	dialer  *stream.Dialer
	useTUI  bool
	cleanup func()
}

// newEnv resolves options and builds the clients. wantTUI tells whether the
// command would render a TUI; the log then goes to a file.
func newEnv(cmd *cobra.Command, wantTUI bool) (*env, error) {
	opts, err := config.Load()
	if err != nil {
		return nil, &ExitError{Code: ExitCLIError, Err: err}
	}
	useTUI := wantTUI && !opts.NoUI && isTerminal()

	lc := config.Logging()
	lc.Output = cmd.ErrOrStderr()
	if useTUI {
		if path, err := dirs.LogFile(); err == nil {
			lc.File = path
		}
	}
	log, cleanup, err := logging.New(lc)
	if err != nil {
		return nil, &ExitError{Code: ExitCLIError, Err: err}
	}

	e := &env{
		opts:    opts,
		log:     log,
		useTUI:  useTUI,
		cleanup: cleanup,
		client: api.NewClient(opts.Server,
			api.WithTimeout(opts.Timeout),
			api.WithUploadTimeout(opts.UploadTimeout),
			api.WithLogger(log),
		),
		dialer: stream.NewDialer(opts.Server,
			stream.WithReconnect(opts.Reconnect),
			stream.WithDialerLogger(log),
		),
	}
	log.WithFields(logrus.Fields{"server": opts.Server, "tui": useTUI}).Debug("environment ready")
	return e, nil
}

func (e *env) Close() {
	if e.cleanup != nil {
		e.cleanup()
	}
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// classify maps a pull-API error onto an exit code.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee
	}
	if errors.Is(err, context.Canceled) {
		return &ExitError{Code: ExitCLIError, Err: errors.New("interrupted")}
	}
	var te *api.TransportError
	if errors.As(err, &te) && te.StatusCode == 0 {
		return &ExitError{Code: ExitUnreachable, Err: fmt.Errorf("server unreachable: %w", err)}
	}
	var se *model.ServerReportedError
	if errors.As(err, &se) {
		return &ExitError{Code: ExitJobFailed, Err: err}
	}
	return &ExitError{Code: ExitCLIError, Err: err}
}
