package progress

import "postgrator/internal/model"

// LogAggregator is an append-only, arrival-ordered buffer of log lines.
//
// With a zero limit the buffer is unbounded. A positive limit keeps only the
// newest lines; relative order of the kept lines never changes.
type LogAggregator struct {
	lines   []model.LogLine
	limit   int
	dropped int
}

// NewLogAggregator returns an aggregator keeping at most limit lines (0 = unbounded).
func NewLogAggregator(limit int) *LogAggregator {
	if limit < 0 {
		limit = 0
	}
	return &LogAggregator{limit: limit}
}

// Append adds a line at the end.
func (a *LogAggregator) Append(l model.LogLine) {
	a.lines = append(a.lines, l)
	if a.limit > 0 && len(a.lines) > a.limit {
		over := len(a.lines) - a.limit
		a.dropped += over
		// Shift in place; the backing array stays bounded.
		n := copy(a.lines, a.lines[over:])
		a.lines = a.lines[:n]
	}
}

// Snapshot returns a copy of the buffer in arrival order.
func (a *LogAggregator) Snapshot() []model.LogLine {
	out := make([]model.LogLine, len(a.lines))
	copy(out, a.lines)
	return out
}

// Len returns the number of buffered lines.
func (a *LogAggregator) Len() int { return len(a.lines) }

// Dropped returns how many lines were evicted by the limit.
func (a *LogAggregator) Dropped() int { return a.dropped }

// Reset empties the buffer, e.g. when the job id changes.
func (a *LogAggregator) Reset() {
	a.lines = nil
	a.dropped = 0
}
