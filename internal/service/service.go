package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/MimeLyc/jobhunt-companion/internal/backend"
	"github.com/MimeLyc/jobhunt-companion/internal/progress"
	"github.com/MimeLyc/jobhunt-companion/internal/session"
	"github.com/MimeLyc/jobhunt-companion/pkg/log"
)

// Backend is the part of the backend client the service drives.
type Backend interface {
	StartWorkflow(ctx context.Context, inputs backend.WorkflowInputs) (string, error)
	GetWorkflowResult(ctx context.Context, workflowID string) (map[string]json.RawMessage, error)
	PrepareInterview(ctx context.Context, workflowID string) (string, error)
	GetInterviewResult(ctx context.Context, interviewID string) (json.RawMessage, error)
	GetRecommendations(ctx context.Context) (*backend.Recommendations, error)
	GetFeedbackStatus(ctx context.Context) (*backend.FeedbackStatus, error)
	GetClassifiedProjects(ctx context.Context) (json.RawMessage, error)
	GenerateResume(ctx context.Context) (*backend.GeneratedResume, error)
	ExportResume(ctx context.Context, format, title string) (*backend.ExportHandle, error)
	UploadResumePDF(ctx context.Context, fileName string, r io.Reader) (*backend.ExtractedResume, error)
}

// Tracker follows one backend job. *progress.Tracker implements it.
type Tracker interface {
	Track(ctx context.Context, kind backend.Kind, jobID string, cb progress.Callbacks) (cancel func())
}

// StartResult is returned by StartWorkflow.
type StartResult struct {
	WorkflowID string   `json:"workflow_id"`
	Warnings   []string `json:"warnings,omitempty"`
}

// RetryInfo reports retry usage.
type RetryInfo struct {
	Count int `json:"count"`
	Limit int `json:"limit"`
}

type Option func(*Service)

// WithRetryLimit sets how many retries one set of inputs gets.
func WithRetryLimit(limit int) Option {
	return func(s *Service) {
		s.retries = NewRetryCounter(limit)
	}
}

// WithResetHook registers fn to run when the session is reset.
func WithResetHook(fn func(context.Context) error) Option {
	return func(s *Service) {
		if fn != nil {
			s.resetHooks = append(s.resetHooks, fn)
		}
	}
}

// Service drives the job lifecycle: it starts and retries jobs, keeps at most
// one tracked job per kind, and writes every outcome into the session store.
type Service struct {
	root    context.Context
	store   *session.Store
	backend Backend
	tracker Tracker
	retries *RetryCounter

	resetHooks []func(context.Context) error

	// lifecycle serializes starting, retrying and resetting jobs.
	lifecycle sync.Mutex

	mu      sync.Mutex
	cancels map[backend.Kind]func()
	loaded  map[string]bool
	loads   sync.WaitGroup
}

// New builds a Service. root bounds every background tracking and result load.
func New(root context.Context, store *session.Store, b Backend, tracker Tracker, opts ...Option) *Service {
	s := &Service{
		root:    root,
		store:   store,
		backend: b,
		tracker: tracker,
		retries: NewRetryCounter(3),
		cancels: make(map[backend.Kind]func()),
		loaded:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) State() session.AppState {
	return s.store.Snapshot()
}

func (s *Service) Retries() RetryInfo {
	return RetryInfo{Count: s.retries.Count(), Limit: s.retries.Limit()}
}

// StartWorkflow submits fresh inputs. Validation happens before any network call.
func (s *Service) StartWorkflow(ctx context.Context, inputs session.Inputs) (*StartResult, error) {
	inputs = NormalizeInputs(inputs)
	if err := ValidateInputs(inputs); err != nil {
		return nil, err
	}
	warnings := LanguageWarnings(inputs)
	for _, w := range warnings {
		log.Warn("%s", w)
	}

	if _, err := s.store.Update(func(st session.AppState) session.AppState {
		st.Inputs = inputs
		return st
	}); err != nil {
		log.Warn("Inputs not persisted: %v", err)
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	id, err := s.backend.StartWorkflow(ctx, workflowInputs(inputs))
	if err != nil {
		return nil, Classify(err, "Failed to start workflow")
	}
	s.retries.Reset()
	s.beginWorkflow(id, "Starting workflow...")

	return &StartResult{WorkflowID: id, Warnings: warnings}, nil
}

// RetryWorkflow resubmits the stored inputs of a failed or abandoned workflow.
// Once the retry limit is reached it fails locally without contacting the
// backend.
func (s *Service) RetryWorkflow(ctx context.Context) (*StartResult, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	st := s.store.Snapshot()
	if err := ValidateInputs(st.Inputs); err != nil {
		return nil, err
	}
	if !retryable(st.Workflow) {
		return nil, NewError(ErrValidation, "Only a failed workflow can be retried").
			WithContext("status", string(st.Workflow.Status))
	}
	inputs := st.Inputs
	if err := s.retries.Acquire(); err != nil {
		return nil, err
	}
	log.Info("Retrying workflow (%d/%d)", s.retries.Count(), s.retries.Limit())

	s.stopTracking(backend.KindWorkflow)
	s.update(func(st session.AppState) session.AppState {
		st.Workflow.Status = progress.StatusRunning
		st.Workflow.Progress = 0
		st.Workflow.Message = "Retrying..."
		st.Workflow.Error = ""
		st.Workflow.Notice = ""
		st.Workflow.Stalled = false
		st.Workflow.Abandoned = false
		st.Workflow.GiveUpReason = ""
		return st
	})

	id, err := s.backend.StartWorkflow(ctx, workflowInputs(inputs))
	if err != nil {
		svcErr := Classify(err, "Failed to retry workflow")
		s.update(func(st session.AppState) session.AppState {
			st.Workflow.Status = progress.StatusFailed
			st.Workflow.Error = "Failed to retry workflow: " + userMessage(err)
			return st
		})
		return nil, svcErr
	}
	s.beginWorkflow(id, "Starting workflow...")
	return &StartResult{WorkflowID: id}, nil
}

func retryable(wf session.WorkflowState) bool {
	return wf.Status == progress.StatusFailed || wf.Abandoned
}

// beginWorkflow replaces the tracked workflow. Callers hold s.lifecycle.
func (s *Service) beginWorkflow(id, message string) {
	s.stopTracking(backend.KindWorkflow)
	s.stopTracking(backend.KindInterview)
	s.update(func(st session.AppState) session.AppState {
		st.Workflow = session.WorkflowState{
			WorkflowID:  id,
			Status:      progress.StatusRunning,
			CurrentStep: "agent1",
			Message:     message,
			Results:     map[string]json.RawMessage{},
		}
		// a new workflow invalidates everything derived from the old one
		st.Interview = session.Initial().Interview
		st.FinalResume = nil
		st.CurrentPage = session.PageInput
		return st
	})
	log.Info("Workflow %s started", id)
	s.track(backend.KindWorkflow, id)
}

// PrepareInterview starts interview preparation for the current workflow.
func (s *Service) PrepareInterview(ctx context.Context) (string, error) {
	workflowID := s.store.Snapshot().Workflow.WorkflowID
	if workflowID == "" {
		return "", NewError(ErrValidation, "No workflow to prepare an interview for")
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	id, err := s.backend.PrepareInterview(ctx, workflowID)
	if err != nil {
		return "", Classify(err, "Error starting interview preparation")
	}

	s.stopTracking(backend.KindInterview)
	s.update(func(st session.AppState) session.AppState {
		st.Interview = session.InterviewState{
			InterviewID: id,
			Status:      progress.StatusRunning,
			Message:     "Preparing interview materials...",
		}
		return st
	})
	log.Info("Interview %s started for workflow %s", id, workflowID)
	s.track(backend.KindInterview, id)
	return id, nil
}

// GenerateResume asks the backend for the final résumé, stores it and starts
// interview preparation. An interview start failure does not fail the call.
func (s *Service) GenerateResume(ctx context.Context) (*backend.GeneratedResume, error) {
	generated, err := s.backend.GenerateResume(ctx)
	if err != nil {
		return nil, Classify(err, "Error generating resume")
	}
	resume := generated.FinalResume
	s.update(func(st session.AppState) session.AppState {
		st.FinalResume = &resume
		return st
	})

	if _, err := s.PrepareInterview(ctx); err != nil {
		log.Warn("Interview preparation not started: %v", err)
		s.update(func(st session.AppState) session.AppState {
			st.Interview.Notice = userMessage(err)
			return st
		})
	}
	return generated, nil
}

func (s *Service) ExportResume(ctx context.Context, format, title string) (*backend.ExportHandle, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "pdf", "docx", "markdown", "txt":
	default:
		return nil, NewError(ErrValidation, fmt.Sprintf("Unsupported export format %q", format))
	}
	handle, err := s.backend.ExportResume(ctx, format, title)
	if err != nil {
		return nil, Classify(err, "Error exporting resume")
	}
	return handle, nil
}

// UploadResumePDF extracts the text of a PDF résumé and stores it as the résumé input.
func (s *Service) UploadResumePDF(ctx context.Context, fileName string, r io.Reader) (*backend.ExtractedResume, error) {
	if !strings.HasSuffix(strings.ToLower(fileName), ".pdf") {
		return nil, NewError(ErrValidation, "Only PDF files are supported")
	}
	extracted, err := s.backend.UploadResumePDF(ctx, fileName, r)
	if err != nil {
		return nil, Classify(err, "Failed to extract text from PDF")
	}
	text := normalizeText(extracted.ExtractedText)
	s.update(func(st session.AppState) session.AppState {
		st.Inputs.ResumeText = text
		return st
	})
	return extracted, nil
}

// SetInputs stores draft inputs without starting anything.
func (s *Service) SetInputs(inputs session.Inputs) session.AppState {
	return s.update(func(st session.AppState) session.AppState {
		st.Inputs = NormalizeInputs(inputs)
		return st
	})
}

func (s *Service) SetPage(page session.Page) (session.AppState, error) {
	if !page.Valid() {
		return session.AppState{}, NewError(ErrValidation, fmt.Sprintf("Unknown page %q", page))
	}
	return s.update(func(st session.AppState) session.AppState {
		st.CurrentPage = page
		return st
	}), nil
}

// Resume re-attaches tracking to jobs that were running when the process stopped.
func (s *Service) Resume() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	st := s.store.Snapshot()
	if st.Active(string(backend.KindWorkflow)) {
		log.Info("Resuming tracking of workflow %s", st.Workflow.WorkflowID)
		s.track(backend.KindWorkflow, st.Workflow.WorkflowID)
	}
	if st.Active(string(backend.KindInterview)) {
		log.Info("Resuming tracking of interview %s", st.Interview.InterviewID)
		s.track(backend.KindInterview, st.Interview.InterviewID)
	}
}

// Reset stops all tracking and clears the session.
func (s *Service) Reset(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.stopTracking(backend.KindWorkflow)
	s.stopTracking(backend.KindInterview)
	s.retries.Reset()
	s.mu.Lock()
	s.loaded = make(map[string]bool)
	s.mu.Unlock()

	var errs []error
	if err := s.store.Reset(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, hook := range s.resetHooks {
		if err := hook(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	log.Info("Session reset")
	return errors.Join(errs...)
}

// Close stops tracking and waits for pending result loads.
func (s *Service) Close() {
	s.stopTracking(backend.KindWorkflow)
	s.stopTracking(backend.KindInterview)
	s.loads.Wait()
}

func (s *Service) stopTracking(kind backend.Kind) {
	s.mu.Lock()
	cancel := s.cancels[kind]
	delete(s.cancels, kind)
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Service) update(fn func(session.AppState) session.AppState) session.AppState {
	st, err := s.store.Update(fn)
	if err != nil {
		log.Warn("State not persisted: %v", err)
	}
	return st
}

func workflowInputs(in session.Inputs) backend.WorkflowInputs {
	return backend.WorkflowInputs{
		JDText:       in.JDText,
		ResumeText:   in.ResumeText,
		ProjectsText: in.ProjectsText,
	}
}
