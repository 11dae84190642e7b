package progress

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/MimeLyc/jobhunt-companion/internal/backend"
	"github.com/MimeLyc/jobhunt-companion/pkg/log"
)

// Source is the part of the backend client the tracker needs.
type Source interface {
	Progress(ctx context.Context, kind backend.Kind, id string) (*backend.Progress, error)
	Stream(ctx context.Context, kind backend.Kind, id string, events chan<- backend.StreamEvent) error
}

// Callbacks receive tracking output. Any of them may be nil.
//
// Callbacks run one at a time on the tracker's goroutine. They must not call
// the cancel func returned by Track; cancel the context passed to Track instead.
type Callbacks struct {
	OnUpdate         func(Snapshot)
	OnTransportError func(error)
	OnStall          func(stalled bool)
}

type Tracker struct {
	source   Source
	settings Settings
	clock    clockwork.Clock
}

type Option func(*Tracker)

func WithClock(clock clockwork.Clock) Option {
	return func(t *Tracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

func WithSettings(settings Settings) Option {
	return func(t *Tracker) {
		t.settings = settings.withDefaults()
	}
}

func NewTracker(source Source, opts ...Option) *Tracker {
	t := &Tracker{
		source:   source,
		settings: DefaultSettings(),
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) Settings() Settings {
	return t.settings
}

// Track follows one job until it reaches a terminal status, tracking is
// abandoned, ctx is done, or the returned cancel func is called. cancel is
// idempotent and no callback runs after it returns.
func (t *Tracker) Track(ctx context.Context, kind backend.Kind, jobID string, cb Callbacks) (cancel func()) {
	ctx, stop := context.WithCancel(ctx)
	r := &run{
		kind:        kind,
		jobID:       jobID,
		source:      t.source,
		clock:       t.clock,
		settings:    t.settings,
		cb:          cb,
		ctx:         ctx,
		stop:        stop,
		pollResults: make(chan pollResult),
		done:        make(chan struct{}),
	}
	r.m = newMachine(jobID, t.settings, r, r)

	log.Info("Tracking %s job %s", kind, jobID)
	go r.loop(kind == backend.KindWorkflow)

	return r.cancel
}

type pollResult struct {
	progress *backend.Progress
	err      error
}

// run is the state of one Track call. Fields below loop-owned are touched only
// by the loop goroutine.
type run struct {
	kind     backend.Kind
	jobID    string
	source   Source
	clock    clockwork.Clock
	settings Settings
	cb       Callbacks

	ctx  context.Context
	stop context.CancelFunc
	done chan struct{}

	mu       sync.Mutex
	canceled bool
	once     sync.Once

	pollResults chan pollResult

	// loop-owned
	m            *machine
	pushCancel   context.CancelFunc
	pushEvents   chan backend.StreamEvent
	pushDone     chan error
	ticker       clockwork.Ticker
	pollInFlight bool
	timers       [numTimers]clockwork.Timer
}

func (r *run) cancel() {
	r.once.Do(func() {
		r.mu.Lock()
		r.canceled = true
		r.mu.Unlock()
		r.stop()
		log.Debug("Tracking of %s job %s canceled", r.kind, r.jobID)
	})
}

func (r *run) loop(pushCapable bool) {
	defer close(r.done)
	defer r.shutdown()

	r.m.start(pushCapable)

	for !r.m.phase.Done() {
		select {
		case <-r.ctx.Done():
			r.m.cancel()

		case ev := <-r.pushEvents:
			if ev.Open {
				log.Debug("Push channel open for %s", r.jobID)
				r.m.pushOpened()
			} else if ev.Progress != nil {
				r.m.pushSnapshot(snapshotFrom(r.kind, r.jobID, ev.Progress, ChannelPush, r.clock.Now()))
			}

		case err := <-r.pushDone:
			log.Debug("Push channel for %s closed: %v", r.jobID, err)
			r.pushCancel, r.pushEvents, r.pushDone = nil, nil, nil
			r.m.pushClosed(err)

		case res := <-r.pollResults:
			r.pollInFlight = false
			if res.err != nil {
				log.Debug("Poll for %s failed: %v", r.jobID, res.err)
				r.m.pollFailed(res.err)
			} else {
				r.m.pollSnapshot(snapshotFrom(r.kind, r.jobID, res.progress, ChannelPull, r.clock.Now()))
			}

		case <-r.tickerChan():
			r.issuePoll()

		case <-r.timerChan(timerGrace):
			r.timers[timerGrace] = nil
			r.m.graceExpired()

		case <-r.timerChan(timerSilence):
			r.timers[timerSilence] = nil
			r.m.silenceExpired()

		case <-r.timerChan(timerOverlap):
			r.timers[timerOverlap] = nil
			r.m.overlapExpired()

		case <-r.timerChan(timerQuiet):
			r.timers[timerQuiet] = nil
			r.m.quietExpired()
		}
	}
	log.Info("Stopped tracking %s job %s (%s)", r.kind, r.jobID, r.m.phase)
}

func (r *run) shutdown() {
	r.m.halt()
	r.stop()
}

func (r *run) tickerChan() <-chan time.Time {
	if r.ticker == nil {
		return nil
	}
	return r.ticker.Chan()
}

func (r *run) timerChan(id timerID) <-chan time.Time {
	if r.timers[id] == nil {
		return nil
	}
	return r.timers[id].Chan()
}

func (r *run) issuePoll() {
	if r.pollInFlight || !r.m.pollDue() {
		return
	}
	r.pollInFlight = true
	ctx := r.ctx
	go func() {
		p, err := r.source.Progress(ctx, r.kind, r.jobID)
		select {
		case r.pollResults <- pollResult{progress: p, err: err}:
		case <-ctx.Done():
		}
	}()
}

// driver

func (r *run) openPush() {
	if r.pushCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(r.ctx)
	events := make(chan backend.StreamEvent)
	done := make(chan error, 1)
	go func() {
		done <- r.source.Stream(ctx, r.kind, r.jobID, events)
	}()
	r.pushCancel, r.pushEvents, r.pushDone = cancel, events, done
}

func (r *run) closePush() {
	if r.pushCancel == nil {
		return
	}
	r.pushCancel()
	r.pushCancel, r.pushEvents, r.pushDone = nil, nil, nil
}

func (r *run) startPolling() {
	if r.ticker != nil {
		return
	}
	r.ticker = r.clock.NewTicker(r.settings.PollInterval)
	r.issuePoll()
}

func (r *run) stopPolling() {
	if r.ticker == nil {
		return
	}
	r.ticker.Stop()
	r.ticker = nil
}

func (r *run) arm(id timerID) {
	r.disarm(id)
	r.timers[id] = r.clock.NewTimer(r.duration(id))
}

func (r *run) disarm(id timerID) {
	if r.timers[id] == nil {
		return
	}
	r.timers[id].Stop()
	r.timers[id] = nil
}

func (r *run) duration(id timerID) time.Duration {
	switch id {
	case timerGrace:
		return r.settings.Grace
	case timerSilence:
		return r.settings.PushSilence
	case timerOverlap:
		return r.settings.OverlapWindow
	default:
		return r.settings.QuietWindow
	}
}

// sink

func (r *run) deliver(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.canceled || r.ctx.Err() != nil {
		return
	}
	fn()
}

func (r *run) update(s Snapshot) {
	if r.cb.OnUpdate == nil {
		return
	}
	r.deliver(func() { r.cb.OnUpdate(s) })
}

func (r *run) transportError(err error) {
	log.Warn("Tracking %s job %s: %v", r.kind, r.jobID, err)
	if r.cb.OnTransportError == nil {
		return
	}
	r.deliver(func() { r.cb.OnTransportError(err) })
}

func (r *run) stall(stalled bool) {
	if stalled {
		log.Warn("No progress for %s job %s in %s", r.kind, r.jobID, r.settings.QuietWindow)
	}
	if r.cb.OnStall == nil {
		return
	}
	r.deliver(func() { r.cb.OnStall(stalled) })
}
