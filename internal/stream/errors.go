package stream

import "fmt"

// StreamError is a push-channel failure: a failed dial, an abnormal close
// or an undecodable message. It is diagnostic only.
type StreamError struct {
	JobID   string
	Op      string // dial | read | decode
	Attempt int    // reconnect attempt, 0 for the first connection
	Err     error
}

func (e *StreamError) Error() string {
	if e.Attempt > 0 {
		return fmt.Sprintf("stream %s for job %s (attempt %d): %v", e.Op, e.JobID, e.Attempt, e.Err)
	}
	return fmt.Sprintf("stream %s for job %s: %v", e.Op, e.JobID, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }
