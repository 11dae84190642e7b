package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/MimeLyc/jobhunt-companion/pkg/log"
)

// Persister stores the serialized state record.
type Persister interface {
	LoadState(ctx context.Context, key string) ([]byte, bool, error)
	SaveState(ctx context.Context, key string, payload []byte) error
	DeleteState(ctx context.Context, key string) error
}

// Store is the single owner of AppState. Readers get deep copies and writers
// replace the whole record through Update.
type Store struct {
	mu        sync.Mutex
	state     AppState
	persister Persister
	now       func() time.Time

	subMu   sync.Mutex
	subs    map[int]chan AppState
	nextSub int
}

// NewStore restores the persisted record, if any. A nil persister keeps state in memory.
func NewStore(ctx context.Context, persister Persister) (*Store, error) {
	s := &Store{
		state:     Initial(),
		persister: persister,
		now:       time.Now,
		subs:      make(map[int]chan AppState),
	}
	if persister == nil {
		return s, nil
	}

	payload, ok, err := persister.LoadState(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if !ok {
		return s, nil
	}
	restored := Initial()
	if err := json.Unmarshal(payload, &restored); err != nil {
		log.Warn("Discarding unreadable stored state: %v", err)
		return s, nil
	}
	if !restored.CurrentPage.Valid() {
		restored.CurrentPage = PageInput
	}
	if restored.Workflow.Results == nil {
		restored.Workflow.Results = map[string]json.RawMessage{}
	}
	s.state = restored
	return s, nil
}

func (s *Store) Snapshot() AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Update hands fn a copy of the current state and stores what it returns.
// The new state is kept even if persisting it fails; the error is returned.
func (s *Store) Update(fn func(AppState) AppState) (AppState, error) {
	s.mu.Lock()
	next := fn(s.state.Clone())
	next.UpdatedAt = s.now().UTC()
	s.state = next
	err := s.persist(next)
	out := next.Clone()
	s.publish(out)
	s.mu.Unlock()
	return out, err
}

// Reset restores the initial state and drops the persisted record.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.state = Initial()
	s.state.UpdatedAt = s.now().UTC()
	out := s.state.Clone()
	var err error
	if s.persister != nil {
		err = s.persister.DeleteState(ctx, StorageKey)
	}
	s.publish(out)
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

// Subscribe returns a channel that always holds the most recent state not yet
// read. Call the returned func to unsubscribe.
func (s *Store) Subscribe() (<-chan AppState, func()) {
	ch := make(chan AppState, 1)
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) persist(state AppState) error {
	if s.persister == nil {
		return nil
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.persister.SaveState(ctx, StorageKey, payload); err != nil {
		log.Error("Failed to persist state: %v", err)
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (s *Store) publish(state AppState) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		// latest wins: replace an unread state
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- state.Clone():
		default:
		}
	}
}
