package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// StageID names a phase of the server-side migration pipeline.
type StageID string

const (
	StageVerify           StageID = "verify"
	StageRestore          StageID = "restore"
	StageSchemaDiscovery  StageID = "schema_discovery"
	StageDDLApply         StageID = "ddl_apply"
	StageDataCopy         StageID = "data_copy"
	StageConstraintsApply StageID = "constraints_apply"
	StageValidate         StageID = "validate"
	StageDone             StageID = "done"
)

// RunState is the coarse job status reported next to the stage.
type RunState string

const (
	RunQueued  RunState = "queued"
	RunRunning RunState = "running"
	RunDone    RunState = "done"
	RunFailed  RunState = "failed"
)

// Stats carries the numeric counters of a job snapshot.
type Stats struct {
	TablesDone  int     `json:"tablesDone"`
	TablesTotal int     `json:"tablesTotal"`
	ElapsedSec  float64 `json:"elapsedSec"`
}

// JobStatus is the authoritative snapshot returned by GET /jobs/{id}.
// It is replaced wholesale on every successful fetch.
type JobStatus struct {
	JobID        string   `json:"jobId,omitempty"`
	Status       RunState `json:"status,omitempty"`
	Stage        StageID  `json:"stage"`
	Percent      *float64 `json:"percent"` // nil when the server omitted it
	CurrentTable string   `json:"currentTable,omitempty"`
	Stats        Stats    `json:"stats"`
	Error        string   `json:"error,omitempty"`
}

// ClampedPercent returns the percent clamped to [0,100]; absent renders as 0.
func (s *JobStatus) ClampedPercent() float64 {
	if s == nil || s.Percent == nil {
		return 0
	}
	return ClampPercent(*s.Percent)
}

// ClampPercent bounds p to [0,100].
func ClampPercent(p float64) float64 {
	switch {
	case p != p: // NaN
		return 0
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// LogLevel is the severity of a log line.
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

// Normalize maps unknown levels to info, the same way the log pane renders them.
func (l LogLevel) Normalize() LogLevel {
	switch l {
	case LevelWarning, LevelError:
		return l
	default:
		return LevelInfo
	}
}

// LogLine is one entry of the job log.
type LogLine struct {
	Level      LogLevel
	Msg        string
	ObservedAt time.Time
}

// TableMetadata describes one migrated table.
type TableMetadata struct {
	Schema   string `json:"schema,omitempty"`
	Name     string `json:"name"`
	RowCount int64  `json:"rowCount"`
	Copied   bool   `json:"copied"`
	Error    string `json:"error,omitempty"`
}

// Succeeded reports whether the table was copied without error.
func (t TableMetadata) Succeeded() bool {
	return t.Copied && t.Error == ""
}

// RowPage is one bounded page of table rows. Total is the full row count of
// the table, independent of the page size.
type RowPage struct {
	Columns  []string            `json:"columns"`
	Rows     [][]json.RawMessage `json:"rows"`
	Total    int64               `json:"total"`
	Page     int                 `json:"page,omitempty"`
	PageSize int                 `json:"pageSize,omitempty"`
}

// Normalize pads or truncates every row to len(Columns) cells and reports
// how many rows had to be fixed.
func (p *RowPage) Normalize() int {
	fixed := 0
	n := len(p.Columns)
	for i, row := range p.Rows {
		if len(row) == n {
			continue
		}
		fixed++
		if len(row) > n {
			p.Rows[i] = row[:n]
			continue
		}
		padded := make([]json.RawMessage, n)
		copy(padded, row)
		for j := len(row); j < n; j++ {
			padded[j] = json.RawMessage("null")
		}
		p.Rows[i] = padded
	}
	return fixed
}

// Cell renders a cell for display; JSON null renders as NULL. Numbers are
// printed exactly as the server sent them.
func Cell(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "NULL"
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(raw)
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return string(raw)
	}
}

// ServerReportedError is a migration-domain failure reported by the server,
// either through JobStatus.Error or an `error` stream event.
type ServerReportedError struct {
	JobID string
	Msg   string
}

func (e *ServerReportedError) Error() string {
	if e.JobID == "" {
		return "server reported: " + e.Msg
	}
	return fmt.Sprintf("job %s: server reported: %s", e.JobID, e.Msg)
}

// Options holds user-configurable runtime options resolved from flags, env and config.
type Options struct {
	Server        string
	Timeout       time.Duration
	UploadTimeout time.Duration // 0 = bounded by ctx only
	PageSize      int
	NoUI          bool
	LogLimit      int
	Grace         time.Duration
	Reconnect     ReconnectOptions
	OutDir        string
}

// ReconnectMode selects the push-channel reconnection policy.
type ReconnectMode string

const (
	ReconnectNone    ReconnectMode = "none"
	ReconnectFixed   ReconnectMode = "fixed"
	ReconnectBackoff ReconnectMode = "backoff"
)

// ReconnectOptions configures reconnection after an abnormal close.
type ReconnectOptions struct {
	Mode        ReconnectMode
	Interval    time.Duration
	MaxInterval time.Duration
	MaxAttempts int // 0 = unlimited
}
