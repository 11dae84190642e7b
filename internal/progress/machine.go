package progress

import (
	"errors"
	"fmt"
	"io"

	"github.com/MimeLyc/jobhunt-companion/internal/backend"
)

// Phase is the state of one tracked job.
type Phase int

const (
	PhaseConnecting Phase = iota
	PhasePushActive
	PhaseOverlap
	PhasePullActive
	PhaseTerminal
	PhaseAbandoned
	PhaseCanceled
)

var phaseNames = map[Phase]string{
	PhaseConnecting: "connecting",
	PhasePushActive: "push-active",
	PhaseOverlap:    "overlap",
	PhasePullActive: "pull-active",
	PhaseTerminal:   "terminal",
	PhaseAbandoned:  "abandoned",
	PhaseCanceled:   "canceled",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Done reports whether the phase accepts no further input.
func (p Phase) Done() bool {
	return p == PhaseTerminal || p == PhaseAbandoned || p == PhaseCanceled
}

type timerID int

const (
	timerGrace timerID = iota
	timerSilence
	timerOverlap
	timerQuiet
	numTimers
)

// driver performs the side effects the machine decides on.
type driver interface {
	openPush()
	closePush()
	startPolling()
	stopPolling()
	arm(timerID)
	disarm(timerID)
}

// sink receives what the caller gets to see.
type sink interface {
	update(Snapshot)
	transportError(error)
	stall(bool)
}

// machine holds the transition rules. It is not safe for concurrent use;
// the tracker feeds it from a single goroutine.
type machine struct {
	jobID    string
	settings Settings
	drv      driver
	out      sink

	phase    Phase
	last     *Snapshot
	polling  bool
	polls    int
	notFound int
	stalled  bool
}

func newMachine(jobID string, settings Settings, drv driver, out sink) *machine {
	return &machine{
		jobID:    jobID,
		settings: settings.withDefaults(),
		drv:      drv,
		out:      out,
		phase:    PhaseConnecting,
	}
}

func (m *machine) start(pushCapable bool) {
	m.drv.arm(timerQuiet)
	if !pushCapable {
		m.phase = PhasePullActive
		m.beginPolling()
		return
	}
	m.phase = PhaseConnecting
	m.drv.openPush()
	m.drv.arm(timerGrace)
}

func (m *machine) pushOpened() {
	if m.phase != PhaseConnecting {
		return
	}
	m.drv.disarm(timerGrace)
	m.phase = PhasePushActive
	m.drv.arm(timerSilence)
}

func (m *machine) pushSnapshot(s Snapshot) {
	switch m.phase {
	case PhaseConnecting:
		m.pushOpened()
	case PhaseOverlap:
		// push came back before the overlap ran out
		m.drv.disarm(timerOverlap)
		m.endPolling()
		m.phase = PhasePushActive
	}
	if m.phase == PhasePushActive {
		m.drv.arm(timerSilence)
	}
	m.apply(s)
}

func (m *machine) pushClosed(err error) {
	switch m.phase {
	case PhaseConnecting, PhasePushActive:
		m.drv.disarm(timerGrace)
		m.drv.disarm(timerSilence)
		m.drv.closePush()
		m.phase = PhasePullActive
		if !errors.Is(err, backend.ErrStreamUnsupported) {
			m.out.transportError(pushError(err))
		}
		m.beginPolling()
	case PhaseOverlap:
		m.drv.disarm(timerOverlap)
		m.drv.closePush()
		m.phase = PhasePullActive
	}
}

func (m *machine) graceExpired() {
	if m.phase != PhaseConnecting {
		return
	}
	m.drv.closePush()
	m.phase = PhasePullActive
	m.out.transportError(ErrPushUnavailable)
	m.beginPolling()
}

func (m *machine) silenceExpired() {
	if m.phase != PhasePushActive {
		return
	}
	m.phase = PhaseOverlap
	m.drv.arm(timerOverlap)
	m.beginPolling()
}

func (m *machine) overlapExpired() {
	if m.phase != PhaseOverlap {
		return
	}
	m.drv.closePush()
	m.phase = PhasePullActive
	m.out.transportError(ErrPushUnavailable)
}

// pollDue is asked before every pull request. It counts the request or, once
// the ceiling is reached, abandons tracking.
func (m *machine) pollDue() bool {
	if m.phase != PhasePullActive && m.phase != PhaseOverlap {
		return false
	}
	if m.polls >= m.settings.MaxPolls {
		m.abandon(ErrTakingTooLong)
		return false
	}
	m.polls++
	return true
}

func (m *machine) pollSnapshot(s Snapshot) {
	m.apply(s)
}

func (m *machine) pollFailed(err error) {
	if m.phase.Done() {
		return
	}
	if backend.IsNotFound(err) {
		m.notFound++
		if m.notFound >= m.settings.NotFoundLimit {
			m.abandon(fmt.Errorf("%w (%d consecutive lookups failed)", ErrJobNotFound, m.notFound))
		}
		return
	}
	m.out.transportError(err)
}

func (m *machine) quietExpired() {
	if m.phase.Done() || m.stalled {
		return
	}
	if m.last != nil && m.last.Status != StatusRunning {
		return
	}
	m.stalled = true
	m.out.stall(true)
}

func (m *machine) cancel() {
	if m.phase.Done() {
		return
	}
	m.phase = PhaseCanceled
	m.halt()
}

// apply delivers s. Any snapshot, pushed or pulled, proves the job exists.
func (m *machine) apply(s Snapshot) {
	if m.phase.Done() {
		return
	}
	m.notFound = 0
	if m.stalled {
		m.stalled = false
		m.out.stall(false)
	}
	m.drv.arm(timerQuiet)

	if m.last != nil && m.last.sameAs(s) {
		return
	}
	m.last = &s
	m.out.update(s)

	if s.Status.Terminal() {
		m.phase = PhaseTerminal
		m.halt()
	}
}

func (m *machine) abandon(cause error) {
	m.phase = PhaseAbandoned
	m.halt()
	m.out.transportError(&AbandonedError{JobID: m.jobID, Cause: cause})
}

func (m *machine) beginPolling() {
	if m.polling {
		return
	}
	m.polling = true
	m.drv.startPolling()
}

func (m *machine) endPolling() {
	if !m.polling {
		return
	}
	m.polling = false
	m.drv.stopPolling()
}

func (m *machine) halt() {
	for id := timerID(0); id < numTimers; id++ {
		m.drv.disarm(id)
	}
	m.drv.closePush()
	m.endPolling()
}

func pushError(err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return ErrPushUnavailable
	}
	return fmt.Errorf("%w: %v", ErrPushUnavailable, err)
}
