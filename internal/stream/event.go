// Package stream implements the per-job push channel: a websocket that
// delivers one JSON-encoded event per message.
package stream

import (
	"encoding/json"
	"fmt"
	"strconv"

	"postgrator/internal/model"
)

// Event tags as sent in the `t` discriminant.
const (
	TagStage         = "stage"
	TagLog           = "log"
	TagTableProgress = "table_progress"
	TagDone          = "done"
	TagError         = "error"
)

// Event is one decoded push-channel message. The concrete type is one of
// StageEvent, LogEvent, TableProgressEvent, DoneEvent, ErrorEvent or UnknownEvent.
type Event interface {
	Tag() string
}

// StageEvent announces the stage the job entered.
type StageEvent struct {
	Stage model.StageID `json:"v"`
}

// LogEvent carries one server log line.
type LogEvent struct {
	Level model.LogLevel `json:"level"`
	Msg   string         `json:"msg"`
}

// TableProgressEvent reports copy progress of one table.
type TableProgressEvent struct {
	Table   string  `json:"table"`
	Rows    int64   `json:"rows"`
	Total   int64   `json:"total"`
	Percent float64 `json:"percent"`
}

// DoneEvent marks the end of the job.
type DoneEvent struct {
	Success bool `json:"success"`
}

// ErrorEvent carries a job-level failure message.
type ErrorEvent struct {
	Msg string `json:"msg"`
}

// UnknownEvent is any message whose tag this client does not understand.
type UnknownEvent struct {
	T   string
	Raw json.RawMessage
}

func (StageEvent) Tag() string         { return TagStage }
func (LogEvent) Tag() string           { return TagLog }
func (TableProgressEvent) Tag() string { return TagTableProgress }
func (DoneEvent) Tag() string          { return TagDone }
func (ErrorEvent) Tag() string         { return TagError }
func (e UnknownEvent) Tag() string     { return e.T }

// Line renders the progress as a log message, e.g. "orders: 500/1000 rows (50%)".
func (e TableProgressEvent) Line() string {
	return e.Table + ": " + strconv.FormatInt(e.Rows, 10) + "/" + strconv.FormatInt(e.Total, 10) +
		" rows (" + strconv.FormatFloat(e.Percent, 'f', -1, 64) + "%)"
}

type envelope struct {
	T string `json:"t"`
}

// Decode parses one message. Unrecognised tags decode to UnknownEvent;
// only malformed JSON is an error.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}

	var (
		ev  Event
		err error
	)
	switch env.T {
	case TagStage:
		var e StageEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case TagLog:
		var e LogEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case TagTableProgress:
		var e TableProgressEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case TagDone:
		var e DoneEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case TagError:
		var e ErrorEvent
		err = json.Unmarshal(data, &e)
		ev = e
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return UnknownEvent{T: env.T, Raw: raw}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode %q event: %w", env.T, err)
	}
	return ev, nil
}
