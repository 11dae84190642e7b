package service

import "sync"

// RetryCounter bounds how often the same inputs may be resubmitted.
// It lives for the process and is not persisted.
type RetryCounter struct {
	mu    sync.Mutex
	count int
	limit int
}

func NewRetryCounter(limit int) *RetryCounter {
	if limit <= 0 {
		limit = 3
	}
	return &RetryCounter{limit: limit}
}

// Acquire counts one retry or rejects it once the limit is reached.
func (r *RetryCounter) Acquire() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count >= r.limit {
		return NewError(ErrRetryLimit, RetryLimitMessage).
			WithContext("attempts", r.count).
			WithContext("limit", r.limit)
	}
	r.count++
	return nil
}

func (r *RetryCounter) Reset() {
	r.mu.Lock()
	r.count = 0
	r.mu.Unlock()
}

func (r *RetryCounter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *RetryCounter) Limit() int {
	return r.limit
}
