package progress

import (
	"time"

	"postgrator/internal/model"
)

// Update conveys the observable state of a monitored job after a change.
// Percent is always clamped to 0..100.
type Update struct {
	JobID      string
	Stage      model.StageID
	StageIndex int
	Percent    float64
	Status     *model.JobStatus // last applied snapshot; nil until the first fetch succeeds
	Logs       []model.LogLine
	ServerErr  string
	Completed  bool // completion callback has fired
	Stale      bool // last snapshot fetch failed
	At         time.Time
}

// Reporter is implemented by the UI or any observer interested in monitor updates.
type Reporter interface {
	Update(u Update)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Update)

func (f ReporterFunc) Update(u Update) { f(u) }
