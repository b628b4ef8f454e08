package ui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"postgrator/internal/progress"
)

// mailbox is a progress.Reporter that keeps only the newest update.
// Update never blocks, so the monitor loop is never held up by rendering
// and Stop can safely be called from the tea event loop.
type mailbox struct {
	mu     sync.Mutex
	latest progress.Update
	full   bool
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (b *mailbox) Update(u progress.Update) {
	b.mu.Lock()
	b.latest, b.full = u, true
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *mailbox) take() (progress.Update, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.latest, b.full
	b.full = false
	return u, ok
}

// listen waits for the next update; it returns nil once ctx is done.
func (b *mailbox) listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-b.notify:
				if u, ok := b.take(); ok {
					return monitorUpdateMsg{U: u}
				}
			}
		}
	}
}
