package progress

import "postgrator/internal/model"

// StageInfo pairs a stage id with its display label.
type StageInfo struct {
	ID    model.StageID
	Label string
}

// Stages is the fixed pipeline order; the index defines timeline position.
var Stages = []StageInfo{
	{ID: model.StageVerify, Label: "Verify"},
	{ID: model.StageRestore, Label: "Restore"},
	{ID: model.StageSchemaDiscovery, Label: "Schema discovery"},
	{ID: model.StageDDLApply, Label: "Create tables"},
	{ID: model.StageDataCopy, Label: "Copy data"},
	{ID: model.StageConstraintsApply, Label: "Constraints"},
	{ID: model.StageValidate, Label: "Validate"},
	{ID: model.StageDone, Label: "Done"},
}

// StageIndex returns the timeline position of id, or -1 when unknown.
func StageIndex(id model.StageID) int {
	for i, s := range Stages {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// StageState is the rendering state of one timeline entry.
type StageState string

const (
	StateCompleted StageState = "completed"
	StateActive    StageState = "active"
	StatePending   StageState = "pending"
)

// StageTracker maps stage ids onto the ordered timeline.
//
// The tracker does not enforce monotonicity: the most recently applied known
// stage always wins. Unknown stages leave the position untouched.
type StageTracker struct {
	index int
}

// NewStageTracker starts at the first stage.
func NewStageTracker() *StageTracker {
	return &StageTracker{}
}

// Set moves the tracker to id and reports whether id was recognised.
func (t *StageTracker) Set(id model.StageID) bool {
	i := StageIndex(id)
	if i < 0 {
		return false
	}
	t.index = i
	return true
}

// Index returns the current timeline position.
func (t *StageTracker) Index() int { return t.index }

// Current returns the stage at the current position.
func (t *StageTracker) Current() StageInfo { return Stages[t.index] }

// IsTerminal reports whether the tracker sits on the last stage.
func (t *StageTracker) IsTerminal() bool { return t.index == len(Stages)-1 }

// Reset returns the tracker to the first stage.
func (t *StageTracker) Reset() { t.index = 0 }

// Timeline returns the state of every stage relative to the current position.
func (t *StageTracker) Timeline() []StageState {
	return TimelineAt(t.index)
}

// TimelineAt computes the timeline for an arbitrary position.
func TimelineAt(index int) []StageState {
	out := make([]StageState, len(Stages))
	for i := range Stages {
		switch {
		case i < index:
			out[i] = StateCompleted
		case i == index:
			out[i] = StateActive
		default:
			out[i] = StatePending
		}
	}
	return out
}
