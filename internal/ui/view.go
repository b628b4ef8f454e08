package ui

import (
	"fmt"
	"strings"

	"postgrator/internal/flow"
	"postgrator/internal/progress"
)

func (m Model) View() string {
	var body string
	switch m.state.Phase {
	case flow.Uploading:
		body = m.styles.Spinner.Render(m.spinner.View()) + " Uploading backup…"
	case flow.Monitoring:
		body = m.viewProgress()
	case flow.Browsing:
		body = m.viewResults()
	default:
		if m.err != nil {
			body = m.styles.Error.Render("✗ " + m.err.Error())
		}
	}
	return m.viewHeader() + "\n\n" + body + "\n" + m.viewFooter()
}

func (m Model) viewHeader() string {
	title := m.styles.Title.Render("postgrator · SQL Server → PostgreSQL")
	sub := "job " + m.state.JobID
	if m.state.JobID == "" {
		sub = "no job yet"
	}
	return title + "\n" + m.styles.Subtitle.Render(sub)
}

func (m Model) viewFooter() string {
	switch {
	case m.state.Phase == flow.Browsing && m.rowsOpen:
		return m.styles.Faint.Render("n/→ next • p/← prev • esc back • q quit")
	case m.state.Phase == flow.Browsing:
		return m.styles.Faint.Render("↑/↓ select • enter rows • q quit")
	case m.state.Phase == flow.Monitoring:
		return m.styles.Faint.Render("↑/↓ scroll log • q quit")
	}
	return m.styles.Faint.Render("q quit")
}

func (m Model) viewProgress() string {
	u := m.last
	var b strings.Builder

	if u.ServerErr != "" {
		b.WriteString(m.styles.Banner.Render("✗ " + u.ServerErr))
		b.WriteString("\n")
	}
	if u.Stale {
		b.WriteString(m.styles.Warning.Render("! status may be stale: server unreachable"))
		b.WriteString("\n")
	}

	b.WriteString(m.viewTimeline(u.StageIndex))
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("%s %5.1f%%", m.bar.ViewAs(u.Percent/100.0), u.Percent))
	if st := u.Status; st != nil {
		if st.CurrentTable != "" {
			b.WriteString("  " + m.styles.JobInfo.Render(st.CurrentTable))
		}
		if st.Stats.TablesTotal > 0 {
			b.WriteString(m.styles.Faint.Render(fmt.Sprintf("  tables %d/%d", st.Stats.TablesDone, st.Stats.TablesTotal)))
		}
	} else if !m.seen {
		b.WriteString("  " + m.styles.Spinner.Render(m.spinner.View()) + m.styles.Faint.Render(" connecting"))
	}
	b.WriteString("\n\n")

	b.WriteString(m.styles.Header.Render("Log"))
	b.WriteString("\n")
	if len(u.Logs) == 0 {
		b.WriteString(m.styles.Faint.Render("waiting for server output…"))
	} else {
		b.WriteString(m.logs.View())
	}
	b.WriteString("\n")
	return m.styles.Box.Render(b.String())
}

func (m Model) viewTimeline(index int) string {
	var b strings.Builder
	for i, state := range progress.TimelineAt(index) {
		label := progress.Stages[i].Label
		switch state {
		case progress.StateCompleted:
			b.WriteString(m.styles.Success.Render("✓ " + label))
		case progress.StateActive:
			b.WriteString(m.styles.StageActive.Render(m.spinner.View() + label))
		default:
			b.WriteString(m.styles.Faint.Render("○ " + label))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) viewResults() string {
	var b strings.Builder
	if m.loading && m.tables == nil {
		return m.styles.Spinner.Render(m.spinner.View()) + " Loading tables…\n"
	}
	if m.tableErr != nil {
		return m.styles.Error.Render("✗ could not list tables: "+m.tableErr.Error()) + "\n"
	}

	s := m.summary
	b.WriteString(m.styles.Success.Render("✓ Migration complete"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%d tables • %d rows • %d ok • %d failed\n", s.Tables, s.TotalRows, s.Succeeded, len(s.Failed)))
	for _, t := range s.Failed {
		msg := t.Error
		if msg == "" {
			msg = "not copied"
		}
		b.WriteString(m.styles.Error.Render(fmt.Sprintf("  • %s: %s", t.Name, truncate(msg, 60))))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if !m.rowsOpen {
		b.WriteString(m.tableSel.View())
		b.WriteString("\n")
		return b.String()
	}

	name := m.browser.Table()
	b.WriteString(m.styles.Header.Render(name))
	b.WriteString(m.styles.Faint.Render(fmt.Sprintf("  page %d/%d • %d rows", max(m.pageNum, 1), max(m.pages, 1), m.rowTotal)))
	if m.loading {
		b.WriteString("  " + m.styles.Spinner.Render(m.spinner.View()))
	}
	b.WriteString("\n")
	if m.pageErr != nil {
		b.WriteString(m.styles.Error.Render("✗ " + m.pageErr.Error()))
		b.WriteString("\n")
	}
	b.WriteString(m.rows.View())
	b.WriteString("\n")
	return b.String()
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if n <= 0 || len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}
