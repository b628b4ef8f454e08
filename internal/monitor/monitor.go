// Package monitor reconciles a job's pull-based status snapshot with its
// push-based event stream.
//
// Every stream event is treated as an invalidation signal: after the event
// is applied, the snapshot is re-fetched, and the most recently arriving
// snapshot always wins.
package monitor

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"postgrator/internal/model"
	"postgrator/internal/progress"
	"postgrator/internal/stream"
)

// DefaultGrace is the delay between a successful `done` event and the
// completion callback, so the final log lines can render first.
const DefaultGrace = 1500 * time.Millisecond

// ErrAlreadyStarted is returned by Start on a monitor that was started or stopped.
var ErrAlreadyStarted = errors.New("monitor already started")

// Fetcher pulls the status snapshot of a job.
type Fetcher interface {
	FetchStatus(ctx context.Context, jobID string) (*model.JobStatus, error)
}

// Stream is an open push channel.
type Stream interface {
	Events() <-chan stream.Event
	Errors() <-chan error
	Close() error
}

// Opener opens the push channel of a job.
type Opener interface {
	Open(ctx context.Context, jobID string) (Stream, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, jobID string) (Stream, error)

func (f OpenerFunc) Open(ctx context.Context, jobID string) (Stream, error) { return f(ctx, jobID) }

// DialerOpener adapts a *stream.Dialer to Opener.
func DialerOpener(d *stream.Dialer) Opener {
	return OpenerFunc(func(ctx context.Context, jobID string) (Stream, error) {
		h, err := d.Open(ctx, jobID)
		if err != nil {
			return nil, err
		}
		return h, nil
	})
}

type snapshotResult struct {
	status *model.JobStatus
	err    error
}

// Monitor watches one job id. All monitor state is owned by a single loop
// goroutine; fetches, the stream and the completion timer only send to it.
type Monitor struct {
	jobID   string
	session string
	fetcher Fetcher
	opener  Opener

	clock      clockwork.Clock
	log        logrus.FieldLogger
	reporter   progress.Reporter
	onComplete func()
	grace      time.Duration
	logLimit   int

	// Loop-owned.
	tracker   *progress.StageTracker
	logs      *progress.LogAggregator
	status    *model.JobStatus
	eventErr  string
	stale     bool
	scheduled bool
	completed bool
	timer     clockwork.Timer
	stream    Stream

	snapshots chan snapshotResult
	fire      chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stopCh    chan struct{}
	loopDone  chan struct{}
	doneCh    chan struct{}
	cancel    context.CancelFunc

	mu   sync.RWMutex
	view progress.Update
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces the wall clock, e.g. with a fake clock in tests.
func WithClock(c clockwork.Clock) Option {
	return func(m *Monitor) {
		m.clock = c
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Monitor) {
		m.log = l
	}
}

// WithReporter attaches an observer notified after every state change.
// Reporters are called from the monitor loop and must not block.
func WithReporter(r progress.Reporter) Option {
	return func(m *Monitor) {
		m.reporter = r
	}
}

// WithOnComplete sets the callback fired once, a grace delay after a
// successful `done` event.
func WithOnComplete(f func()) Option {
	return func(m *Monitor) {
		m.onComplete = f
	}
}

// WithGraceDelay overrides DefaultGrace.
func WithGraceDelay(d time.Duration) Option {
	return func(m *Monitor) {
		if d >= 0 {
			m.grace = d
		}
	}
}

// WithLogLimit caps the log buffer (0 = unbounded).
func WithLogLimit(n int) Option {
	return func(m *Monitor) {
		m.logLimit = n
	}
}

// New creates a monitor for jobID. It does nothing until Start.
func New(jobID string, f Fetcher, o Opener, opts ...Option) *Monitor {
	m := &Monitor{
		jobID:     jobID,
		session:   uuid.NewString(),
		fetcher:   f,
		opener:    o,
		clock:     clockwork.NewRealClock(),
		grace:     DefaultGrace,
		snapshots: make(chan snapshotResult),
		fire:      make(chan struct{}),
		stopCh:    make(chan struct{}),
		loopDone:  make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		m.log = l
	}
	m.log = m.log.WithFields(logrus.Fields{"job_id": jobID, "session": m.session})
	m.tracker = progress.NewStageTracker()
	m.logs = progress.NewLogAggregator(m.logLimit)
	m.view = m.buildUpdate()
	return m
}

// JobID returns the monitored job id.
func (m *Monitor) JobID() string { return m.jobID }

// Start activates the monitor: fetch the initial snapshot, then open the
// push channel and process events until Stop. It does not block.
func (m *Monitor) Start(ctx context.Context) error {
	err := ErrAlreadyStarted
	m.startOnce.Do(func() {
		select {
		case <-m.stopCh:
			return
		default:
		}
		lctx, cancel := context.WithCancel(ctx)
		m.cancel = cancel
		m.started = true
		err = nil
		go m.loop(lctx)
	})
	return err
}

// Stop deactivates the monitor: the push channel is closed, a pending
// completion is cancelled and late fetch results are discarded. Stop is
// idempotent and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		// Block a later Start.
		m.startOnce.Do(func() {})
		close(m.stopCh)
		if m.cancel != nil {
			m.cancel()
		}
	})
	if m.started {
		<-m.loopDone
	}
}

// Done is closed when the completion callback fires.
func (m *Monitor) Done() <-chan struct{} { return m.doneCh }

// State returns the last published view of the job.
func (m *Monitor) State() progress.Update {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.loopDone)
	defer m.teardown()

	m.log.Debug("monitor started")

	st, err := m.fetcher.FetchStatus(ctx, m.jobID)
	if m.stopped() {
		return
	}
	m.applySnapshot(snapshotResult{status: st, err: err})

	s, err := m.opener.Open(ctx, m.jobID)
	if m.stopped() {
		if s != nil {
			_ = s.Close()
		}
		return
	}
	if err != nil {
		m.log.WithError(err).Warn("push channel unavailable; showing snapshot only")
	} else {
		m.stream = s
	}

	for {
		var (
			events <-chan stream.Event
			errs   <-chan error
		)
		if m.stream != nil {
			events = m.stream.Events()
			errs = m.stream.Errors()
		}

		select {
		case <-m.stopCh:
			return
		case ev, ok := <-events:
			if !ok {
				m.log.Info("push channel ended")
				_ = m.stream.Close()
				m.stream = nil
				continue
			}
			m.handleEvent(ev)
			m.refresh(ctx)
		case err := <-errs:
			m.log.WithError(err).Warn("push channel diagnostic")
		case res := <-m.snapshots:
			m.applySnapshot(res)
		case <-m.fire:
			m.complete()
		}
	}
}

func (m *Monitor) stopped() bool {
	select {
	case <-m.stopCh:
		return true
	default:
		return false
	}
}

func (m *Monitor) teardown() {
	if m.stream != nil {
		_ = m.stream.Close()
		m.stream = nil
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.log.Debug("monitor stopped")
}

// refresh re-pulls the snapshot without blocking the loop.
func (m *Monitor) refresh(ctx context.Context) {
	go func() {
		st, err := m.fetcher.FetchStatus(ctx, m.jobID)
		select {
		case m.snapshots <- snapshotResult{status: st, err: err}:
		case <-m.stopCh:
		}
	}()
}

func (m *Monitor) applySnapshot(res snapshotResult) {
	if res.err != nil || res.status == nil {
		m.stale = true
		m.log.WithError(res.err).Warn("status fetch failed; keeping previous snapshot")
		m.publish()
		return
	}
	m.stale = false
	m.status = res.status
	if !m.tracker.Set(res.status.Stage) {
		m.log.WithField("stage", res.status.Stage).Debug("unrecognized stage in snapshot")
	}
	m.publish()
}

func (m *Monitor) handleEvent(ev stream.Event) {
	now := m.clock.Now()
	switch e := ev.(type) {
	case stream.StageEvent:
		if !m.tracker.Set(e.Stage) {
			m.log.WithField("stage", e.Stage).Debug("unrecognized stage event")
		}
	case stream.LogEvent:
		m.logs.Append(model.LogLine{Level: e.Level, Msg: e.Msg, ObservedAt: now})
	case stream.TableProgressEvent:
		m.logs.Append(model.LogLine{Level: model.LevelInfo, Msg: e.Line(), ObservedAt: now})
	case stream.DoneEvent:
		if e.Success && !m.scheduled {
			m.scheduled = true
			m.timer = m.clock.AfterFunc(m.grace, func() {
				select {
				case m.fire <- struct{}{}:
				case <-m.stopCh:
				}
			})
		}
	case stream.ErrorEvent:
		m.eventErr = e.Msg
		m.logs.Append(model.LogLine{Level: model.LevelError, Msg: e.Msg, ObservedAt: now})
	default:
		m.log.WithField("event", ev.Tag()).Debug("ignoring unknown event")
	}
	m.publish()
}

func (m *Monitor) complete() {
	if m.completed {
		return
	}
	m.completed = true
	close(m.doneCh)
	m.log.Info("job completed")
	m.publish()
	if m.onComplete != nil {
		// Off the loop so the callback may call Stop.
		go m.onComplete()
	}
}

// serverError prefers the snapshot error over the last error event.
func (m *Monitor) serverError() string {
	if m.status != nil && m.status.Error != "" {
		return m.status.Error
	}
	return m.eventErr
}

func (m *Monitor) buildUpdate() progress.Update {
	cur := m.tracker.Current()
	return progress.Update{
		JobID:      m.jobID,
		Stage:      cur.ID,
		StageIndex: m.tracker.Index(),
		Percent:    m.status.ClampedPercent(),
		Status:     m.status,
		Logs:       m.logs.Snapshot(),
		ServerErr:  m.serverError(),
		Completed:  m.completed,
		Stale:      m.stale,
		At:         m.clock.Now(),
	}
}

func (m *Monitor) publish() {
	u := m.buildUpdate()
	m.mu.Lock()
	m.view = u
	m.mu.Unlock()
	if m.reporter != nil {
		m.reporter.Update(u)
	}
}
