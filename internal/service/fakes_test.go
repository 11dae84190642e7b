package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/jobhunt-companion/internal/backend"
	"github.com/MimeLyc/jobhunt-companion/internal/progress"
	"github.com/MimeLyc/jobhunt-companion/internal/session"
)

type fakeBackend struct {
	mu sync.Mutex

	starts        int
	resultCalls   int
	interviews    int
	startErr      error
	prepareErr    error
	results       map[string]json.RawMessage
	interviewData json.RawMessage
	uploaded      string
}

func (f *fakeBackend) StartWorkflow(_ context.Context, in backend.WorkflowInputs) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	f.starts++
	return fmt.Sprintf("wf-%d", f.starts), nil
}

func (f *fakeBackend) GetWorkflowResult(context.Context, string) (map[string]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resultCalls++
	return f.results, nil
}

func (f *fakeBackend) PrepareInterview(_ context.Context, workflowID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.prepareErr != nil {
		return "", f.prepareErr
	}
	f.interviews++
	return fmt.Sprintf("iv-%d", f.interviews), nil
}

func (f *fakeBackend) GetInterviewResult(context.Context, string) (json.RawMessage, error) {
	return f.interviewData, nil
}

func (f *fakeBackend) GetRecommendations(context.Context) (*backend.Recommendations, error) {
	return &backend.Recommendations{}, nil
}

func (f *fakeBackend) GetFeedbackStatus(context.Context) (*backend.FeedbackStatus, error) {
	return &backend.FeedbackStatus{TotalRecommendations: 4, FeedbackReceived: 1, PendingFeedback: 3, CompletionPercentage: 25}, nil
}

func (f *fakeBackend) GetClassifiedProjects(context.Context) (json.RawMessage, error) {
	return nil, errors.New("not classified yet")
}

func (f *fakeBackend) GenerateResume(context.Context) (*backend.GeneratedResume, error) {
	return &backend.GeneratedResume{FinalResume: "# Final"}, nil
}

func (f *fakeBackend) ExportResume(_ context.Context, format, title string) (*backend.ExportHandle, error) {
	return &backend.ExportHandle{Status: "success", DownloadURL: "/download/" + format}, nil
}

func (f *fakeBackend) UploadResumePDF(_ context.Context, name string, r io.Reader) (*backend.ExtractedResume, error) {
	data, _ := io.ReadAll(r)
	f.mu.Lock()
	f.uploaded = name
	f.mu.Unlock()
	return &backend.ExtractedResume{ExtractedText: "  " + string(data) + "  ", FileName: name}, nil
}

func (f *fakeBackend) counts() (starts, results int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.resultCalls
}

type trackCall struct {
	kind     backend.Kind
	id       string
	cb       progress.Callbacks
	canceled *atomic.Bool
}

type fakeTracker struct {
	mu    sync.Mutex
	calls []trackCall
}

func (f *fakeTracker) Track(_ context.Context, kind backend.Kind, id string, cb progress.Callbacks) func() {
	canceled := &atomic.Bool{}
	f.mu.Lock()
	f.calls = append(f.calls, trackCall{kind: kind, id: id, cb: cb, canceled: canceled})
	f.mu.Unlock()
	return func() { canceled.Store(true) }
}

func (f *fakeTracker) all() []trackCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]trackCall(nil), f.calls...)
}

func (f *fakeTracker) last(t *testing.T, kind backend.Kind) trackCall {
	t.Helper()
	calls := f.all()
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].kind == kind {
			return calls[i]
		}
	}
	t.Fatalf("no %s tracked", kind)
	return trackCall{}
}

func newTestService(t *testing.T, opts ...Option) (*Service, *fakeBackend, *fakeTracker) {
	t.Helper()
	store, err := session.NewStore(context.Background(), nil)
	require.NoError(t, err)
	b := &fakeBackend{}
	tr := &fakeTracker{}
	svc := New(context.Background(), store, b, tr, opts...)
	t.Cleanup(svc.Close)
	return svc, b, tr
}

var validInputs = session.Inputs{JDText: "Senior Go engineer", ResumeText: "Ten years of Go"}

// failCurrentWorkflow reports the tracked workflow as failed by the backend.
func failCurrentWorkflow(t *testing.T, svc *Service, tr *fakeTracker) {
	t.Helper()
	id := svc.State().Workflow.WorkflowID
	tr.last(t, backend.KindWorkflow).cb.OnUpdate(progress.Snapshot{JobID: id, Status: progress.StatusFailed, Error: "boom"})
	require.Equal(t, progress.StatusFailed, svc.State().Workflow.Status)
}
