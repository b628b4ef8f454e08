package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHappyPath(t *testing.T) {
	var s State
	assert.Equal(t, Idle, s.Phase)

	s, err := s.StartUpload()
	require.NoError(t, err)
	assert.Equal(t, Uploading, s.Phase)

	s, err = s.UploadAccepted("job-1")
	require.NoError(t, err)
	assert.Equal(t, State{Phase: Monitoring, JobID: "job-1"}, s)

	s, err = s.Completed()
	require.NoError(t, err)
	assert.Equal(t, State{Phase: Browsing, JobID: "job-1"}, s)

	assert.Equal(t, State{}, s.Reset())
}

func TestInvalidTransitions(t *testing.T) {
	monitoring := State{Phase: Monitoring, JobID: "job-1"}
	browsing := State{Phase: Browsing, JobID: "job-1"}
	uploading := State{Phase: Uploading}

	tests := []struct {
		name string
		from State
		do   func(State) (State, error)
	}{
		{name: "completed from idle", from: State{}, do: State.Completed},
		{name: "completed from browsing", from: browsing, do: State.Completed},
		{name: "upload while monitoring", from: monitoring, do: State.StartUpload},
		{name: "accept without upload", from: State{}, do: func(s State) (State, error) { return s.UploadAccepted("job-2") }},
		{name: "accept empty job id", from: uploading, do: func(s State) (State, error) { return s.UploadAccepted("") }},
		{name: "upload failed from idle", from: State{}, do: State.UploadFailed},
		{name: "watch while uploading", from: uploading, do: func(s State) (State, error) { return s.Watch("job-2") }},
		{name: "watch empty job id", from: State{}, do: func(s State) (State, error) { return s.Watch("") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.do(tt.from)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, tt.from, got, "state must not change")
		})
	}
}

func TestWatchSwitchesJob(t *testing.T) {
	s := State{Phase: Browsing, JobID: "job-1"}
	s, err := s.Watch("job-2")
	require.NoError(t, err)
	assert.Equal(t, State{Phase: Monitoring, JobID: "job-2"}, s)
}

func TestUploadFailedReturnsToIdle(t *testing.T) {
	s, err := State{Phase: Uploading}.UploadFailed()
	require.NoError(t, err)
	assert.Equal(t, Idle, s.Phase)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", State{}.String())
	assert.Equal(t, "monitoring(job-1)", State{Phase: Monitoring, JobID: "job-1"}.String())
	assert.Equal(t, "phase(9)", Phase(9).String())
}
