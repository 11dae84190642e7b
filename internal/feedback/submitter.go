package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/MimeLyc/jobhunt-companion/internal/backend"
	"github.com/MimeLyc/jobhunt-companion/internal/persistence"
	"github.com/MimeLyc/jobhunt-companion/internal/service"
	"github.com/MimeLyc/jobhunt-companion/pkg/log"
)

var (
	// ErrAlreadyDecided rejects a second decision on the same item.
	ErrAlreadyDecided = errors.New("feedback already submitted for this item")
	// ErrInFlight rejects a decision while one for the same item is being sent.
	ErrInFlight = errors.New("feedback for this item is being submitted")
)

type Backend interface {
	SubmitFeedback(ctx context.Context, req backend.FeedbackRequest) (*backend.FeedbackResponse, error)
	SubmitBatchFeedback(ctx context.Context, reqs []backend.FeedbackRequest) (*backend.FeedbackResponse, error)
	GetFeedbackStatus(ctx context.Context) (*backend.FeedbackStatus, error)
	GetRecommendations(ctx context.Context) (*backend.Recommendations, error)
}

// DecisionStore keeps decisions across restarts. *persistence.SQLiteStore implements it.
type DecisionStore interface {
	RecordDecision(ctx context.Context, d persistence.Decision) error
	RecordDecisions(ctx context.Context, ds []persistence.Decision) error
	LoadDecisions(ctx context.Context, workflowID string) ([]persistence.Decision, error)
	ClearDecisions(ctx context.Context) error
}

// AcceptAllResult reports what an accept-all sent.
type AcceptAllResult struct {
	Submitted int                     `json:"submitted"`
	Items     []Item                  `json:"items"`
	Status    *backend.FeedbackStatus `json:"feedback_status"`
}

// Submitter sends decisions to the backend and remembers which items of the
// current workflow are decided.
type Submitter struct {
	backend  Backend
	store    DecisionStore
	workflow func() string

	mu        sync.Mutex
	loaded    bool
	loadedFor string
	decided   map[string]Decision
	inFlight  map[string]bool
}

// NewSubmitter builds a Submitter. workflow returns the id decisions are
// scoped to. store may be nil.
func NewSubmitter(b Backend, store DecisionStore, workflow func() string) *Submitter {
	return &Submitter{
		backend:  b,
		store:    store,
		workflow: workflow,
		decided:  make(map[string]Decision),
		inFlight: make(map[string]bool),
	}
}

// Submit posts one decision and returns the refreshed completion status.
func (s *Submitter) Submit(ctx context.Context, it Item) (*backend.FeedbackStatus, error) {
	if err := validate(it); err != nil {
		return nil, err
	}
	workflowID := s.workflow()
	if err := s.claim(ctx, workflowID, it.ID); err != nil {
		return nil, err
	}

	_, err := s.backend.SubmitFeedback(ctx, it.request())
	if err != nil {
		s.release(it.ID)
		return nil, service.Classify(err, "Error submitting feedback")
	}
	s.markDecided(ctx, workflowID, []Item{it})
	log.Info("Feedback %s on %s submitted", it.Decision, it.ID)

	return s.Status(ctx)
}

// AcceptAll accepts every item of recs that has no decision yet in one batch.
// With nil recs the recommendations are fetched first.
func (s *Submitter) AcceptAll(ctx context.Context, recs *backend.Recommendations) (*AcceptAllResult, error) {
	if recs == nil {
		loaded, err := s.backend.GetRecommendations(ctx)
		if err != nil {
			return nil, service.Classify(err, "Error loading recommendations")
		}
		recs = loaded
	}
	workflowID := s.workflow()

	s.mu.Lock()
	if err := s.ensureLoaded(ctx, workflowID); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	var items []Item
	for _, t := range Targets(recs) {
		if _, done := s.decided[t.ID]; done || s.inFlight[t.ID] {
			continue
		}
		items = append(items, Item{Type: t.Type, ID: t.ID, Decision: Accept})
		s.inFlight[t.ID] = true
	}
	s.mu.Unlock()

	if len(items) > 0 {
		reqs := make([]backend.FeedbackRequest, 0, len(items))
		for _, it := range items {
			reqs = append(reqs, it.request())
		}
		if _, err := s.backend.SubmitBatchFeedback(ctx, reqs); err != nil {
			for _, it := range items {
				s.release(it.ID)
			}
			return nil, service.Classify(err, "Error accepting all")
		}
		s.markDecided(ctx, workflowID, items)
		log.Info("Accepted %d recommendations", len(items))
	}

	status, err := s.Status(ctx)
	if err != nil {
		return nil, err
	}
	return &AcceptAllResult{Submitted: len(items), Items: items, Status: status}, nil
}

// Status fetches the backend's completion summary.
func (s *Submitter) Status(ctx context.Context) (*backend.FeedbackStatus, error) {
	status, err := s.backend.GetFeedbackStatus(ctx)
	if err != nil {
		return nil, service.Classify(err, "Error loading feedback status")
	}
	return status, nil
}

// Decisions returns the decisions made on the current workflow.
func (s *Submitter) Decisions(ctx context.Context) (map[string]Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx, s.workflow()); err != nil {
		return nil, err
	}
	out := make(map[string]Decision, len(s.decided))
	for k, v := range s.decided {
		out[k] = v
	}
	return out, nil
}

// History returns the recorded decisions of the current workflow with their
// texts. Without a store only the in-memory choices are known.
func (s *Submitter) History(ctx context.Context) ([]persistence.Decision, error) {
	workflowID := s.workflow()
	if s.store != nil && workflowID != "" {
		ds, err := s.store.LoadDecisions(ctx, workflowID)
		if err != nil {
			return nil, fmt.Errorf("load decisions: %w", err)
		}
		return ds, nil
	}
	decided, err := s.Decisions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]persistence.Decision, 0, len(decided))
	for id, d := range decided {
		out = append(out, persistence.Decision{WorkflowID: workflowID, ItemID: id, Decision: string(d)})
	}
	return out, nil
}

// Clear forgets every decision.
func (s *Submitter) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.decided = make(map[string]Decision)
	s.loaded = false
	s.loadedFor = ""
	s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	return s.store.ClearDecisions(ctx)
}

func (s *Submitter) claim(ctx context.Context, workflowID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx, workflowID); err != nil {
		return err
	}
	if _, done := s.decided[itemID]; done {
		return service.NewErrorWithCause(service.ErrValidation, ErrAlreadyDecided.Error(), ErrAlreadyDecided).
			WithContext("item_id", itemID)
	}
	if s.inFlight[itemID] {
		return service.NewErrorWithCause(service.ErrValidation, ErrInFlight.Error(), ErrInFlight).
			WithContext("item_id", itemID)
	}
	s.inFlight[itemID] = true
	return nil
}

func (s *Submitter) release(itemID string) {
	s.mu.Lock()
	delete(s.inFlight, itemID)
	s.mu.Unlock()
}

func (s *Submitter) markDecided(ctx context.Context, workflowID string, items []Item) {
	s.mu.Lock()
	for _, it := range items {
		delete(s.inFlight, it.ID)
		s.decided[it.ID] = it.Decision
	}
	s.mu.Unlock()

	if s.store == nil {
		return
	}
	ds := make([]persistence.Decision, 0, len(items))
	for _, it := range items {
		ds = append(ds, persistence.Decision{
			WorkflowID:   workflowID,
			ItemID:       it.ID,
			FeedbackType: it.Type,
			Decision:     string(it.Decision),
			ModifiedText: it.ModifiedText,
			Notes:        it.Notes,
		})
	}
	if err := s.store.RecordDecisions(ctx, ds); err != nil {
		log.Warn("Decisions not persisted: %v", err)
	}
}

// ensureLoaded swaps in the decisions of workflowID. Callers hold s.mu.
func (s *Submitter) ensureLoaded(ctx context.Context, workflowID string) error {
	if s.loaded && s.loadedFor == workflowID {
		return nil
	}
	s.decided = make(map[string]Decision)
	s.loaded = true
	s.loadedFor = workflowID
	if s.store == nil || workflowID == "" {
		return nil
	}
	ds, err := s.store.LoadDecisions(ctx, workflowID)
	if err != nil {
		s.loaded = false
		s.loadedFor = ""
		return fmt.Errorf("load decisions: %w", err)
	}
	for _, d := range ds {
		s.decided[d.ItemID] = Decision(d.Decision)
	}
	return nil
}

func validate(it Item) error {
	if strings.TrimSpace(it.ID) == "" {
		return service.NewError(service.ErrValidation, "item_id is required")
	}
	if !knownTypes[it.Type] {
		return service.NewError(service.ErrValidation, fmt.Sprintf("Unknown feedback type %q", it.Type))
	}
	if !it.Decision.Valid() {
		return service.NewError(service.ErrValidation, fmt.Sprintf("Unknown decision %q", it.Decision))
	}
	if it.Decision == FurtherModify && strings.TrimSpace(it.ModifiedText) == "" {
		return service.NewError(service.ErrValidation, "Modified text is required for further_modify")
	}
	return nil
}
