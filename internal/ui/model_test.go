package ui

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postgrator/internal/api"
	"postgrator/internal/flow"
	"postgrator/internal/model"
	"postgrator/internal/progress"
)

type fakeClient struct {
	tables []model.TableMetadata
	total  int64
}

func (f *fakeClient) FetchStatus(ctx context.Context, jobID string) (*model.JobStatus, error) {
	return &model.JobStatus{JobID: jobID, Stage: model.StageVerify}, nil
}

func (f *fakeClient) ListTables(ctx context.Context, jobID string) ([]model.TableMetadata, error) {
	return f.tables, nil
}

func (f *fakeClient) FetchRows(ctx context.Context, jobID, table string, page, pageSize int) (*model.RowPage, error) {
	last := api.TotalPages(f.total, pageSize)
	if page > 1 && page > last {
		return nil, &api.OutOfRangeError{Page: page, TotalPages: last, Total: f.total, Counted: true}
	}
	return &model.RowPage{
		Columns: []string{"id", "name"},
		Rows:    [][]json.RawMessage{{json.RawMessage("1"), json.RawMessage(`"a"`)}},
		Total:   f.total,
	}, nil
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func step(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func TestModelCompletionMovesToResults(t *testing.T) {
	client := &fakeClient{
		tables: []model.TableMetadata{
			{Name: "orders", RowCount: 250, Copied: true},
			{Name: "audit", RowCount: 3, Copied: true, Error: "fk violation"},
		},
		total: 250,
	}
	m := NewModel(context.Background(), Config{JobID: "job-1", Client: client, Options: model.Options{PageSize: 100}})
	require.Equal(t, flow.State{Phase: flow.Monitoring, JobID: "job-1"}, m.state)

	m, _ = step(t, m, monitorUpdateMsg{U: progress.Update{JobID: "job-1", StageIndex: 6, Percent: 99}})
	assert.Equal(t, flow.Monitoring, m.state.Phase)
	assert.Contains(t, m.View(), "Validate")

	m, cmd := step(t, m, monitorUpdateMsg{U: progress.Update{JobID: "job-1", StageIndex: 7, Percent: 100, Completed: true}})
	assert.Equal(t, flow.Browsing, m.state.Phase)
	require.NotNil(t, cmd)

	tables, err := client.ListTables(context.Background(), "job-1")
	require.NoError(t, err)
	m, _ = step(t, m, tablesLoadedMsg{JobID: "job-1", Tables: tables})
	assert.Equal(t, int64(253), m.summary.TotalRows)
	assert.Len(t, m.summary.Failed, 1)
	assert.Contains(t, m.View(), "fk violation")

	m, cmd = step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.True(t, m.rowsOpen)
	require.NotNil(t, cmd)
	m, _ = step(t, m, cmd())
	assert.Equal(t, 1, m.pageNum)
	assert.Equal(t, 3, m.pages)

	m, cmd = step(t, m, runes("p"))
	assert.Nil(t, cmd, "prev on first page is a no-op")

	m, cmd = step(t, m, runes("n"))
	require.NotNil(t, cmd)
	m, _ = step(t, m, cmd())
	assert.Equal(t, 2, m.pageNum)
	assert.Contains(t, m.View(), "page 2/3")

	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.rowsOpen)
}

func TestModelIgnoresUpdatesForOtherJobs(t *testing.T) {
	m := NewModel(context.Background(), Config{JobID: "job-1", Client: &fakeClient{}})
	m, _ = step(t, m, monitorUpdateMsg{U: progress.Update{JobID: "job-0", Completed: true}})
	assert.Equal(t, flow.Monitoring, m.state.Phase)
}

func TestModelShowsServerErrorBanner(t *testing.T) {
	m := NewModel(context.Background(), Config{JobID: "job-1", Client: &fakeClient{}})
	m, _ = step(t, m, monitorUpdateMsg{U: progress.Update{
		JobID:     "job-1",
		ServerErr: "restore failed",
		Logs:      []model.LogLine{{Level: model.LevelError, Msg: "restore failed"}},
	}})
	assert.Contains(t, m.View(), "✗ restore failed")
}

func TestModelUpload(t *testing.T) {
	boom := errors.New("413 too large")
	m := NewModel(context.Background(), Config{
		Client: &fakeClient{},
		Upload: func(ctx context.Context) (string, error) { return "", boom },
	})
	require.Equal(t, flow.Uploading, m.state.Phase)

	m, cmd := step(t, m, uploadResultMsg{Err: boom})
	assert.Equal(t, flow.Idle, m.state.Phase)
	assert.ErrorIs(t, m.err, boom)
	require.NotNil(t, cmd)

	m = NewModel(context.Background(), Config{
		Client: &fakeClient{},
		Upload: func(ctx context.Context) (string, error) { return "job-9", nil },
	})
	m, cmd = step(t, m, uploadResultMsg{JobID: "job-9"})
	assert.Equal(t, flow.State{Phase: flow.Monitoring, JobID: "job-9"}, m.state)
	require.NotNil(t, m.mon)
	assert.Equal(t, "job-9", m.mon.JobID())
	assert.NotNil(t, cmd)
}

func TestMailboxKeepsNewest(t *testing.T) {
	b := newMailbox()
	b.Update(progress.Update{Percent: 10})
	b.Update(progress.Update{Percent: 20})

	msg := b.listen(context.Background())()
	u, ok := msg.(monitorUpdateMsg)
	require.True(t, ok)
	assert.Equal(t, float64(20), u.U.Percent)

	_, ok = b.take()
	assert.False(t, ok)
}
