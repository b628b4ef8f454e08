package ui

import (
	"context"
	"fmt"
	"io"
	"strings"

	bubblesprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"postgrator/internal/browser"
	"postgrator/internal/flow"
	"postgrator/internal/model"
	"postgrator/internal/monitor"
	"postgrator/internal/progress"
)

const maxColumnWidth = 24

// Client is the pull API the TUI needs.
type Client interface {
	monitor.Fetcher
	browser.RowFetcher
	ListTables(ctx context.Context, jobID string) ([]model.TableMetadata, error)
}

// Config describes one TUI session. Exactly one of JobID and Upload is set:
// Upload starts in the uploading view and returns the new job id.
type Config struct {
	JobID   string
	Upload  func(ctx context.Context) (string, error)
	Client  Client
	Opener  monitor.Opener
	Options model.Options
	Log     logrus.FieldLogger
}

type Model struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    Config

	state flow.State
	err   error

	// Monitoring
	mon  *monitor.Monitor
	box  *mailbox
	last progress.Update
	seen bool

	// Browsing
	tables   []model.TableMetadata
	summary  browser.Summary
	tableErr error
	tableSel table.Model
	browser  *browser.Browser
	rows     table.Model
	rowsOpen bool
	pageErr  error
	loading  bool
	pageNum  int
	pages    int
	rowTotal int64

	// UI
	width, height int
	styles        Styles
	spinner       spinner.Model
	bar           bubblesprogress.Model
	logs          viewport.Model
}

func NewModel(ctx context.Context, cfg Config) Model {
	c, cancel := context.WithCancel(ctx)
	if cfg.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		cfg.Log = l
	}

	m := Model{
		ctx:     c,
		cancel:  cancel,
		cfg:     cfg,
		styles:  defaultStyles(),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		bar:     bubblesprogress.New(bubblesprogress.WithDefaultGradient(), bubblesprogress.WithWidth(40)),
		logs:    viewport.New(80, 10),
		tableSel: table.New(
			table.WithColumns(tableListColumns()),
			table.WithFocused(true),
			table.WithHeight(8),
		),
		rows: table.New(table.WithFocused(true), table.WithHeight(12)),
	}

	if cfg.Upload != nil {
		m.state, _ = m.state.StartUpload()
	} else {
		m.state, _ = m.state.Watch(cfg.JobID)
		m.newMonitor(cfg.JobID)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick}
	switch m.state.Phase {
	case flow.Uploading:
		cmds = append(cmds, m.uploadCmd())
	case flow.Monitoring:
		cmds = append(cmds, m.startMonitorCmd())
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			return m, tea.Sequence(stopMonitorCmd(m.mon), tea.Quit)
		}
		return m.updateKeys(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case uploadResultMsg:
		if msg.Err != nil {
			m.state, _ = m.state.UploadFailed()
			m.err = msg.Err
			return m, tea.Quit
		}
		next, err := m.state.UploadAccepted(msg.JobID)
		if err != nil {
			m.err = err
			return m, tea.Quit
		}
		m.state = next
		m.newMonitor(msg.JobID)
		return m, m.startMonitorCmd()

	case monitorUpdateMsg:
		if m.mon == nil || msg.U.JobID != m.mon.JobID() {
			return m, nil
		}
		m.applyUpdate(msg.U)
		if msg.U.Completed && m.state.Phase == flow.Monitoring {
			next, err := m.state.Completed()
			if err == nil {
				m.state = next
				m.loading = true
				return m, tea.Batch(stopMonitorCmd(m.mon), m.loadTablesCmd(next.JobID))
			}
		}
		return m, m.box.listen(m.ctx)

	case tablesLoadedMsg:
		if msg.JobID != m.state.JobID {
			return m, nil
		}
		m.loading = false
		m.tableErr = msg.Err
		m.tables = msg.Tables
		m.summary = browser.Summarize(msg.Tables)
		m.tableSel.SetRows(tableListRows(msg.Tables))
		return m, nil

	case pageLoadedMsg:
		m.loading = false
		m.pageErr = msg.Err
		m.pageNum, m.pages, m.rowTotal = msg.PageNum, msg.TotalPages, msg.Total
		if msg.Page != nil {
			m.setRows(msg.Page)
		}
		return m, nil

	case spinner.TickMsg:
		var c tea.Cmd
		m.spinner, c = m.spinner.Update(msg)
		return m, c

	case bubblesprogress.FrameMsg:
		pm, c := m.bar.Update(msg)
		if bar, ok := pm.(bubblesprogress.Model); ok {
			m.bar = bar
		}
		return m, c
	}
	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var c tea.Cmd
	switch m.state.Phase {
	case flow.Monitoring:
		m.logs, c = m.logs.Update(msg)
		return m, c

	case flow.Browsing:
		if m.rowsOpen {
			switch msg.String() {
			case "n", "right", "l":
				if m.loading || m.pageNum >= m.pages {
					return m, nil
				}
				m.loading = true
				return m, m.pageCmd(m.browser.Next)
			case "p", "left", "h":
				if m.loading || m.pageNum <= 1 {
					return m, nil
				}
				m.loading = true
				return m, m.pageCmd(m.browser.Prev)
			case "esc", "backspace":
				m.rowsOpen = false
				m.pageErr = nil
				return m, nil
			}
			m.rows, c = m.rows.Update(msg)
			return m, c
		}

		if msg.String() == "enter" && len(m.tables) > 0 && !m.loading {
			i := m.tableSel.Cursor()
			if i < 0 || i >= len(m.tables) {
				return m, nil
			}
			t := m.tables[i]
			m.browser = browser.New(m.cfg.Client, m.state.JobID, t.Name, m.cfg.Options.PageSize,
				browser.WithLogger(m.cfg.Log))
			m.rowsOpen = true
			m.loading = true
			m.pageErr = nil
			m.pageNum, m.pages, m.rowTotal = 0, 0, 0
			m.rows.SetRows(nil)
			return m, m.fetchPageCmd()
		}
		m.tableSel, c = m.tableSel.Update(msg)
		return m, c
	}
	return m, nil
}

func (m *Model) newMonitor(jobID string) {
	m.box = newMailbox()
	m.seen = false
	m.last = progress.Update{JobID: jobID}
	m.logs.SetContent("")
	m.mon = monitor.New(jobID, m.cfg.Client, m.cfg.Opener,
		monitor.WithLogger(m.cfg.Log),
		monitor.WithReporter(m.box),
		monitor.WithGraceDelay(m.cfg.Options.Grace),
		monitor.WithLogLimit(m.cfg.Options.LogLimit),
	)
}

func (m *Model) applyUpdate(u progress.Update) {
	grew := len(u.Logs) != len(m.last.Logs)
	atBottom := m.logs.AtBottom()
	m.last = u
	m.seen = true
	if grew {
		m.logs.SetContent(m.renderLogs(u.Logs))
		if atBottom {
			m.logs.GotoBottom()
		}
	}
}

func (m *Model) resize() {
	w := m.width - 4
	if w < 20 {
		w = 20
	}
	m.bar.Width = min(w-10, 60)
	m.logs.Width = w
	// header, timeline, bar, banner and footer take roughly this many rows
	m.logs.Height = max(m.height-len(progress.Stages)-10, 3)
	m.tableSel.SetHeight(max(m.height/3, 3))
	m.rows.SetHeight(max(m.height-12, 3))
	m.rows.SetWidth(w)
}

func (m *Model) setRows(p *model.RowPage) {
	cols := make([]table.Column, len(p.Columns))
	for i, name := range p.Columns {
		cols[i] = table.Column{Title: name, Width: min(max(len(name), 4), maxColumnWidth)}
	}
	rows := make([]table.Row, len(p.Rows))
	for r, raw := range p.Rows {
		row := make(table.Row, len(raw))
		for c, cell := range raw {
			v := model.Cell(cell)
			row[c] = v
			if c < len(cols) && len(v) > cols[c].Width {
				cols[c].Width = min(len(v), maxColumnWidth)
			}
		}
		rows[r] = row
	}
	// Clear rows first: old rows may be wider than the new columns.
	m.rows.SetRows(nil)
	m.rows.SetColumns(cols)
	m.rows.SetRows(rows)
	m.rows.GotoTop()
}

func (m Model) uploadCmd() tea.Cmd {
	upload, ctx := m.cfg.Upload, m.ctx
	return func() tea.Msg {
		id, err := upload(ctx)
		return uploadResultMsg{JobID: id, Err: err}
	}
}

func (m Model) startMonitorCmd() tea.Cmd {
	mon, ctx, log := m.mon, m.ctx, m.cfg.Log
	start := func() tea.Msg {
		if err := mon.Start(ctx); err != nil {
			log.WithError(err).Warn("monitor start")
		}
		return nil
	}
	return tea.Batch(start, m.box.listen(m.ctx))
}

func stopMonitorCmd(mon *monitor.Monitor) tea.Cmd {
	if mon == nil {
		return nil
	}
	return func() tea.Msg {
		mon.Stop()
		return monitorStoppedMsg{JobID: mon.JobID()}
	}
}

func (m Model) loadTablesCmd(jobID string) tea.Cmd {
	client, ctx := m.cfg.Client, m.ctx
	return func() tea.Msg {
		tables, err := client.ListTables(ctx, jobID)
		return tablesLoadedMsg{JobID: jobID, Tables: tables, Err: err}
	}
}

func (m Model) fetchPageCmd() tea.Cmd {
	b, ctx := m.browser, m.ctx
	return func() tea.Msg {
		_, err := b.FetchPage(ctx)
		return pageLoaded(b, err)
	}
}

func (m Model) pageCmd(step func(context.Context) (bool, error)) tea.Cmd {
	b, ctx := m.browser, m.ctx
	return func() tea.Msg {
		_, err := step(ctx)
		return pageLoaded(b, err)
	}
}

func pageLoaded(b *browser.Browser, err error) pageLoadedMsg {
	return pageLoadedMsg{
		Table:      b.Table(),
		Page:       b.Current(),
		PageNum:    b.Page(),
		TotalPages: b.TotalPages(),
		Total:      b.Total(),
		Err:        err,
	}
}

func tableListColumns() []table.Column {
	return []table.Column{
		{Title: "Table", Width: 32},
		{Title: "Rows", Width: 12},
		{Title: "Status", Width: 40},
	}
}

func tableListRows(tables []model.TableMetadata) []table.Row {
	rows := make([]table.Row, len(tables))
	for i, t := range tables {
		name := t.Name
		if t.Schema != "" {
			name = t.Schema + "." + t.Name
		}
		status := "ok"
		switch {
		case t.Error != "":
			status = "error: " + t.Error
		case !t.Copied:
			status = "not copied"
		}
		rows[i] = table.Row{truncate(name, 32), fmt.Sprintf("%d", t.RowCount), truncate(status, 40)}
	}
	return rows
}

func (m Model) renderLogs(lines []model.LogLine) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteString("\n")
		}
		style := m.styles.LogInfo
		switch l.Level.Normalize() {
		case model.LevelWarning:
			style = m.styles.Warning
		case model.LevelError:
			style = m.styles.Error
		}
		ts := ""
		if !l.ObservedAt.IsZero() {
			ts = m.styles.Faint.Render(l.ObservedAt.Format("15:04:05")) + " "
		}
		b.WriteString(ts + style.Render(l.Msg))
	}
	return b.String()
}
