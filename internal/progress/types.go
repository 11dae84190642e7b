package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/MimeLyc/jobhunt-companion/internal/backend"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further updates are expected after s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// NormalizeStatus maps a backend status string onto Status.
// Anything the backend reports that is not idle or terminal counts as running.
func NormalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed", "complete", "success":
		return StatusCompleted
	case "failed", "error":
		return StatusFailed
	case "idle":
		return StatusIdle
	default:
		return StatusRunning
	}
}

// Channel says which transport delivered a snapshot.
type Channel string

const (
	ChannelPush Channel = "push"
	ChannelPull Channel = "pull"
)

// Snapshot is a normalized, whole-object view of a job at one point in time.
type Snapshot struct {
	JobID       string                     `json:"job_id"`
	Kind        backend.Kind               `json:"kind"`
	Status      Status                     `json:"status"`
	CurrentStep string                     `json:"current_step"`
	Progress    int                        `json:"progress"`
	Message     string                     `json:"message"`
	Results     map[string]json.RawMessage `json:"results,omitempty"`
	Result      json.RawMessage            `json:"result,omitempty"`
	Error       string                     `json:"error,omitempty"`
	Channel     Channel                    `json:"channel"`
	ReceivedAt  time.Time                  `json:"received_at"`
}

// sameAs compares the fields the UI renders; payload bodies are not compared.
func (s Snapshot) sameAs(o Snapshot) bool {
	return s.Status == o.Status &&
		s.CurrentStep == o.CurrentStep &&
		s.Progress == o.Progress &&
		s.Message == o.Message
}

func snapshotFrom(kind backend.Kind, jobID string, p *backend.Progress, ch Channel, now time.Time) Snapshot {
	pct := int(math.Round(p.Progress))
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return Snapshot{
		JobID:       jobID,
		Kind:        kind,
		Status:      NormalizeStatus(p.Status),
		CurrentStep: p.CurrentStep,
		Progress:    pct,
		Message:     p.Message,
		Results:     p.Results,
		Result:      p.Result,
		Error:       p.Error,
		Channel:     ch,
		ReceivedAt:  now,
	}
}

// Settings are the timing and budget knobs of a tracker.
type Settings struct {
	// Grace is how long to wait for the push channel to confirm it is open.
	Grace time.Duration
	// PollInterval is the pull period.
	PollInterval time.Duration
	// QuietWindow is the silence after which a running job is flagged as maybe stuck.
	QuietWindow time.Duration
	// MaxPolls caps the number of pull requests per tracked job.
	MaxPolls int
	// NotFoundLimit is the number of consecutive not-found pulls that ends tracking.
	NotFoundLimit int
	// PushSilence is how long an open push channel may stay quiet before backup polling starts.
	PushSilence time.Duration
	// OverlapWindow bounds how long push and pull run together.
	OverlapWindow time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		Grace:         3 * time.Second,
		PollInterval:  2 * time.Second,
		QuietWindow:   120 * time.Second,
		MaxPolls:      300,
		NotFoundLimit: 5,
		PushSilence:   6 * time.Second,
		OverlapWindow: 10 * time.Second,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.Grace <= 0 {
		s.Grace = d.Grace
	}
	if s.PollInterval <= 0 {
		s.PollInterval = d.PollInterval
	}
	if s.QuietWindow <= 0 {
		s.QuietWindow = d.QuietWindow
	}
	if s.MaxPolls <= 0 {
		s.MaxPolls = d.MaxPolls
	}
	if s.NotFoundLimit <= 0 {
		s.NotFoundLimit = d.NotFoundLimit
	}
	if s.PushSilence <= 0 {
		s.PushSilence = d.PushSilence
	}
	if s.OverlapWindow <= 0 {
		s.OverlapWindow = d.OverlapWindow
	}
	return s
}

var (
	// ErrJobNotFound ends tracking after too many consecutive not-found pulls.
	ErrJobNotFound = errors.New("job not found, please restart")
	// ErrTakingTooLong ends tracking once the poll ceiling is reached.
	ErrTakingTooLong = errors.New("job is taking too long, please try again")
	// ErrPushUnavailable is advisory: tracking continues over polling.
	ErrPushUnavailable = errors.New("push channel unavailable, using polling instead")
)

// AbandonedError is delivered through OnTransportError when the tracker gives up.
// No further callbacks follow it.
type AbandonedError struct {
	JobID string
	Cause error
}

func (e *AbandonedError) Error() string {
	return fmt.Sprintf("stopped tracking %s: %v", e.JobID, e.Cause)
}

func (e *AbandonedError) Unwrap() error {
	return e.Cause
}

// IsAbandoned reports whether err ended tracking on the client side.
func IsAbandoned(err error) bool {
	var ae *AbandonedError
	return errors.As(err, &ae)
}
