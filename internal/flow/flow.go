// Package flow is the view state machine: upload, monitor a job, then browse
// its results.
package flow

import (
	"errors"
	"fmt"
)

// Phase names a top-level view.
type Phase int

const (
	Idle Phase = iota
	Uploading
	Monitoring
	Browsing
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Uploading:
		return "uploading"
	case Monitoring:
		return "monitoring"
	case Browsing:
		return "browsing"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// ErrInvalidTransition is returned when an event does not apply to the current phase.
var ErrInvalidTransition = errors.New("invalid view transition")

// State is an immutable view state. JobID is set in Monitoring and Browsing.
type State struct {
	Phase Phase
	JobID string
}

func (s State) String() string {
	if s.JobID == "" {
		return s.Phase.String()
	}
	return s.Phase.String() + "(" + s.JobID + ")"
}

func (s State) invalid(event string) (State, error) {
	return s, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, s)
}

// StartUpload begins an upload from Idle.
func (s State) StartUpload() (State, error) {
	if s.Phase != Idle {
		return s.invalid("start upload")
	}
	return State{Phase: Uploading}, nil
}

// UploadAccepted moves to monitoring the job the server created.
func (s State) UploadAccepted(jobID string) (State, error) {
	if s.Phase != Uploading || jobID == "" {
		return s.invalid("upload accepted")
	}
	return State{Phase: Monitoring, JobID: jobID}, nil
}

// UploadFailed returns to Idle.
func (s State) UploadFailed() (State, error) {
	if s.Phase != Uploading {
		return s.invalid("upload failed")
	}
	return State{Phase: Idle}, nil
}

// Watch monitors an existing job. Switching to another job from Monitoring
// or Browsing is allowed; derived state belongs to the job id.
func (s State) Watch(jobID string) (State, error) {
	if jobID == "" || s.Phase == Uploading {
		return s.invalid("watch")
	}
	return State{Phase: Monitoring, JobID: jobID}, nil
}

// Completed moves a finished job to its results.
func (s State) Completed() (State, error) {
	if s.Phase != Monitoring {
		return s.invalid("completed")
	}
	return State{Phase: Browsing, JobID: s.JobID}, nil
}

// Reset always returns to Idle.
func (s State) Reset() State {
	return State{}
}
