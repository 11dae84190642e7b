package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/jobhunt-companion/internal/httpapi"
	"github.com/MimeLyc/jobhunt-companion/pkg/icron"
	"github.com/MimeLyc/jobhunt-companion/pkg/log"
)

type healthChecker interface {
	Health(ctx context.Context) (bool, error)
	BaseURL() string
}

// healthProbe checks the backend on a cron schedule and keeps the last answer.
type healthProbe struct {
	checker healthChecker
	cron    *cron.Cron
	timeout time.Duration

	mu     sync.Mutex
	expr   string
	entry  cron.EntryID
	ctx    context.Context
	status httpapi.HealthStatus
}

func newHealthProbe(checker healthChecker, c *cron.Cron, expr string) *healthProbe {
	return &healthProbe{
		checker: checker,
		cron:    c,
		expr:    expr,
		timeout: 5 * time.Second,
		ctx:     context.Background(),
	}
}

// Schedule registers the probe and runs one check right away.
func (p *healthProbe) Schedule(ctx context.Context) error {
	p.mu.Lock()
	p.ctx = ctx
	expr := p.expr
	p.mu.Unlock()

	if err := p.Reschedule(expr); err != nil {
		return err
	}
	p.check()
	return nil
}

// Reschedule replaces the probe's cron entry.
func (p *healthProbe) Reschedule(expr string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, err := icron.Every(p.cron, expr, p.check)
	if err != nil {
		return fmt.Errorf("schedule health probe: %w", err)
	}
	if p.entry != 0 {
		p.cron.Remove(p.entry)
	}
	p.entry = id
	p.expr = expr
	log.Debug("Backend health probe scheduled: %s", expr)
	return nil
}

func (p *healthProbe) check() {
	p.mu.Lock()
	parent := p.ctx
	p.mu.Unlock()
	if parent.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(parent, p.timeout)
	defer cancel()
	ok, err := p.checker.Health(ctx)

	status := httpapi.HealthStatus{
		BackendURL: p.checker.BaseURL(),
		Reachable:  ok && err == nil,
		CheckedAt:  time.Now(),
	}
	switch {
	case err != nil:
		status.Error = err.Error()
	case !ok:
		status.Error = "backend reported unhealthy"
	}

	p.mu.Lock()
	was := p.status
	p.status = status
	p.mu.Unlock()

	if was.CheckedAt.IsZero() || was.Reachable != status.Reachable {
		if status.Reachable {
			log.Info("Backend %s is reachable", status.BackendURL)
		} else {
			log.Warn("Backend %s is unreachable: %s", status.BackendURL, status.Error)
		}
	}
}

// Status returns the last probe result.
func (p *healthProbe) Status() httpapi.HealthStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}
