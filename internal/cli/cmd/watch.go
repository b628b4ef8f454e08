package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/spf13/cobra"

	"postgrator/internal/api"
	"postgrator/internal/browser"
	"postgrator/internal/cli"
	"postgrator/internal/model"
	"postgrator/internal/monitor"
	"postgrator/internal/progress"
	"postgrator/internal/ui"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <jobId>",
		Short: "Follow a migration job until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := cli.ValidateJobID(args[0])
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			e, err := newEnv(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			if _, err := e.client.FetchStatus(cmd.Context(), jobID); err != nil {
				var te *api.TransportError
				if errors.As(err, &te) && te.NotFound() {
					return &ExitError{Code: ExitCLIError, Err: fmt.Errorf("job %s not found", jobID)}
				}
				return classify(err)
			}
			return watchJob(cmd.Context(), cmd.OutOrStdout(), e, ui.Config{JobID: jobID})
		},
	}
}

// watchJob follows a job in the TUI or in plain mode. cfg carries either a
// job id or an upload to perform first.
func watchJob(ctx context.Context, out io.Writer, e *env, cfg ui.Config) error {
	if e.useTUI {
		cfg.Client = e.client
		cfg.Opener = monitor.DialerOpener(e.dialer)
		cfg.Options = e.opts
		cfg.Log = e.log
		res, err := ui.Run(ctx, cfg)
		if err != nil {
			return classify(err)
		}
		if res.Failed() {
			return &ExitError{Code: ExitJobFailed, Err: &model.ServerReportedError{JobID: res.State.JobID, Msg: res.Last.ServerErr}}
		}
		return nil
	}

	jobID := cfg.JobID
	if cfg.Upload != nil {
		id, err := cfg.Upload(ctx)
		if err != nil {
			return classify(err)
		}
		jobID = id
		fmt.Fprintf(out, "Job %s started\n", jobID)
	}
	return watchPlain(ctx, out, e, jobID)
}

func watchPlain(ctx context.Context, out io.Writer, e *env, jobID string) error {
	p := &plainPrinter{out: out, failed: make(chan string, 1), lastStage: -1, lastDecile: -1}
	mon := monitor.New(jobID, e.client, monitor.DialerOpener(e.dialer),
		monitor.WithLogger(e.log),
		monitor.WithReporter(p),
		monitor.WithGraceDelay(e.opts.Grace),
	)
	if err := mon.Start(ctx); err != nil {
		return classify(err)
	}
	defer mon.Stop()

	select {
	case <-ctx.Done():
		return classify(ctx.Err())
	case msg := <-p.failed:
		return &ExitError{Code: ExitJobFailed, Err: &model.ServerReportedError{JobID: jobID, Msg: msg}}
	case <-mon.Done():
	}
	mon.Stop()

	fmt.Fprintln(out, "Migration complete")
	tables, err := e.client.ListTables(ctx, jobID)
	if err != nil {
		return classify(err)
	}
	printSummary(out, browser.Summarize(tables))
	return nil
}

// plainPrinter renders monitor updates as lines. It is called from the
// monitor loop only; the mutex covers a late call during shutdown.
type plainPrinter struct {
	mu         sync.Mutex
	out        io.Writer
	lastStage  int
	lastDecile int
	printed    int
	failed     chan string
	reported   bool
}

func (p *plainPrinter) Update(u progress.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if u.StageIndex != p.lastStage {
		p.lastStage = u.StageIndex
		fmt.Fprintf(p.out, "==> %s (%d/%d)\n", progress.Stages[u.StageIndex].Label, u.StageIndex+1, len(progress.Stages))
	}
	if d := int(math.Floor(u.Percent / 10)); d != p.lastDecile {
		p.lastDecile = d
		fmt.Fprintf(p.out, "    %3.0f%%\n", u.Percent)
	}
	for _, l := range u.Logs[min(p.printed, len(u.Logs)):] {
		fmt.Fprintf(p.out, "[%s] %s\n", l.Level.Normalize(), l.Msg)
	}
	p.printed = len(u.Logs)

	if u.ServerErr != "" && !p.reported {
		p.reported = true
		p.failed <- u.ServerErr
	}
}
