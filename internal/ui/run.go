package ui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"postgrator/internal/flow"
	"postgrator/internal/progress"
)

// Result is the state the TUI ended in.
type Result struct {
	State flow.State
	Last  progress.Update
}

// Failed reports whether the job ended with a server-reported error.
func (r Result) Failed() bool { return r.Last.ServerErr != "" }

// Run launches the TUI and blocks until the user quits.
func Run(ctx context.Context, cfg Config) (Result, error) {
	m := NewModel(ctx, cfg)
	prog := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	final, err := prog.Run()
	if err != nil {
		return Result{}, err
	}
	fm, ok := final.(Model)
	if !ok {
		return Result{}, fmt.Errorf("unexpected final model %T", final)
	}
	if fm.mon != nil {
		fm.mon.Stop()
	}
	if fm.err != nil {
		return Result{State: fm.state, Last: fm.last}, fm.err
	}
	return Result{State: fm.state, Last: fm.last}, nil
}
