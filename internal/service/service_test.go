package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/jobhunt-companion/internal/backend"
	"github.com/MimeLyc/jobhunt-companion/internal/progress"
	"github.com/MimeLyc/jobhunt-companion/internal/session"
)

func TestService_StartWorkflow_ValidatesBeforeAnyNetworkCall(t *testing.T) {
	svc, b, tr := newTestService(t)

	_, err := svc.StartWorkflow(context.Background(), session.Inputs{JDText: "  ", ResumeText: "cv"})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrValidation))
	assert.Contains(t, err.Error(), "job description")

	starts, _ := b.counts()
	assert.Zero(t, starts)
	assert.Empty(t, tr.all())
}

func TestService_StartWorkflow_WritesRunningStateAndTracks(t *testing.T) {
	svc, _, tr := newTestService(t)

	res, err := svc.StartWorkflow(context.Background(), validInputs)
	require.NoError(t, err)
	assert.Equal(t, "wf-1", res.WorkflowID)

	st := svc.State()
	assert.Equal(t, "wf-1", st.Workflow.WorkflowID)
	assert.Equal(t, progress.StatusRunning, st.Workflow.Status)
	assert.Equal(t, "agent1", st.Workflow.CurrentStep)
	assert.Equal(t, validInputs.JDText, st.Inputs.JDText)

	call := tr.last(t, backend.KindWorkflow)
	assert.Equal(t, "wf-1", call.id)
}

func TestService_StartWorkflow_BackendFailureIsClassified(t *testing.T) {
	svc, b, _ := newTestService(t)
	b.startErr = &backend.APIError{StatusCode: 503, Message: "busy"}

	_, err := svc.StartWorkflow(context.Background(), validInputs)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrTransport))
	assert.Equal(t, progress.StatusIdle, svc.State().Workflow.Status)
}

func TestService_RetryCeiling(t *testing.T) {
	svc, b, tr := newTestService(t)
	ctx := context.Background()

	_, err := svc.StartWorkflow(ctx, validInputs)
	require.NoError(t, err)
	assert.Equal(t, 0, svc.Retries().Count)

	for i := 1; i <= 3; i++ {
		failCurrentWorkflow(t, svc, tr)
		_, err := svc.RetryWorkflow(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, svc.Retries().Count)
	}
	starts, _ := b.counts()
	require.Equal(t, 4, starts)

	failCurrentWorkflow(t, svc, tr)
	_, err = svc.RetryWorkflow(ctx)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrRetryLimit))
	assert.Contains(t, err.Error(), RetryLimitMessage)
	starts, _ = b.counts()
	assert.Equal(t, 4, starts, "rejected retry must not reach the backend")

	_, err = svc.StartWorkflow(ctx, validInputs)
	require.NoError(t, err)
	assert.Equal(t, 0, svc.Retries().Count)

	failCurrentWorkflow(t, svc, tr)
	_, err = svc.RetryWorkflow(ctx)
	require.NoError(t, err)
}

func TestService_RetryRequiresFailedWorkflow(t *testing.T) {
	svc, b, tr := newTestService(t)
	ctx := context.Background()

	_, err := svc.RetryWorkflow(ctx)
	assert.True(t, IsErrorType(err, ErrValidation))

	_, err = svc.StartWorkflow(ctx, validInputs)
	require.NoError(t, err)
	first := tr.last(t, backend.KindWorkflow)

	_, err = svc.RetryWorkflow(ctx)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrValidation))

	first.cb.OnUpdate(progress.Snapshot{JobID: "wf-1", Status: progress.StatusCompleted, Progress: 100})
	_, err = svc.RetryWorkflow(ctx)
	assert.True(t, IsErrorType(err, ErrValidation))

	starts, _ := b.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 0, svc.Retries().Count)
	assert.False(t, first.canceled.Load())
}

func TestService_RetryFailureMarksWorkflowFailed(t *testing.T) {
	svc, b, tr := newTestService(t)
	ctx := context.Background()
	_, err := svc.StartWorkflow(ctx, validInputs)
	require.NoError(t, err)
	failCurrentWorkflow(t, svc, tr)

	b.startErr = &backend.APIError{StatusCode: 500, Message: "exploded"}
	_, err = svc.RetryWorkflow(ctx)
	require.Error(t, err)

	st := svc.State()
	assert.Equal(t, progress.StatusFailed, st.Workflow.Status)
	assert.Equal(t, "Failed to retry workflow: exploded", st.Workflow.Error)
	assert.Equal(t, 1, svc.Retries().Count)
}

func TestService_ConcurrentStartsTrackTheStoredWorkflow(t *testing.T) {
	svc, _, tr := newTestService(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.StartWorkflow(context.Background(), validInputs)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	current := tr.last(t, backend.KindWorkflow)
	assert.Equal(t, current.id, svc.State().Workflow.WorkflowID)
	assert.False(t, current.canceled.Load())
	for _, call := range tr.all() {
		if call.id != current.id {
			assert.True(t, call.canceled.Load(), call.id)
		}
	}
}

func TestService_CompletionLoadsResultOnceAndNavigates(t *testing.T) {
	svc, b, tr := newTestService(t)
	b.results = map[string]json.RawMessage{"agent4": json.RawMessage(`{"recommendations":{}}`)}

	_, err := svc.StartWorkflow(context.Background(), validInputs)
	require.NoError(t, err)
	cb := tr.last(t, backend.KindWorkflow).cb

	for _, pct := range []int{0, 25, 60} {
		cb.OnUpdate(progress.Snapshot{JobID: "wf-1", Status: progress.StatusRunning, CurrentStep: "agent2", Progress: pct})
		assert.Equal(t, pct, svc.State().Workflow.Progress)
		assert.Equal(t, session.PageInput, svc.State().CurrentPage)
	}
	final := progress.Snapshot{
		JobID:    "wf-1",
		Status:   progress.StatusCompleted,
		Progress: 100,
		Results:  map[string]json.RawMessage{"agent1": json.RawMessage(`{"valid":true}`)},
	}
	cb.OnUpdate(final)
	cb.OnUpdate(final)

	require.Eventually(t, func() bool {
		return svc.State().CurrentPage == session.PageDashboard
	}, time.Second, 5*time.Millisecond)
	svc.Close()

	_, resultCalls := b.counts()
	assert.Equal(t, 1, resultCalls)
	st := svc.State()
	assert.Contains(t, st.Workflow.Results, "agent1")
	assert.Contains(t, st.Workflow.Results, "agent4")
	assert.Equal(t, progress.StatusCompleted, st.Workflow.Status)
}

func TestService_NewStartRetiresPreviousJob(t *testing.T) {
	svc, _, tr := newTestService(t)
	ctx := context.Background()

	_, err := svc.StartWorkflow(ctx, validInputs)
	require.NoError(t, err)
	first := tr.last(t, backend.KindWorkflow)

	_, err = svc.StartWorkflow(ctx, validInputs)
	require.NoError(t, err)
	assert.True(t, first.canceled.Load())

	first.cb.OnUpdate(progress.Snapshot{JobID: "wf-1", Status: progress.StatusFailed, Error: "stale"})
	st := svc.State()
	assert.Equal(t, "wf-2", st.Workflow.WorkflowID)
	assert.Equal(t, progress.StatusRunning, st.Workflow.Status)
	assert.Empty(t, st.Workflow.Error)
}

func TestService_TransportErrors(t *testing.T) {
	svc, _, tr := newTestService(t)
	_, err := svc.StartWorkflow(context.Background(), validInputs)
	require.NoError(t, err)
	cb := tr.last(t, backend.KindWorkflow).cb

	cb.OnTransportError(progress.ErrPushUnavailable)
	assert.Empty(t, svc.State().Workflow.Notice)

	cb.OnTransportError(errors.Join(backend.ErrNetwork, errors.New("dial tcp")))
	assert.Equal(t, "Network error. Please check your connection.", svc.State().Workflow.Notice)
	assert.Equal(t, progress.StatusRunning, svc.State().Workflow.Status)

	cb.OnTransportError(&progress.AbandonedError{JobID: "wf-1", Cause: progress.ErrJobNotFound})
	st := svc.State()
	assert.True(t, st.Workflow.Abandoned)
	assert.Equal(t, "job not found, please restart", st.Workflow.GiveUpReason)
	assert.Equal(t, progress.StatusRunning, st.Workflow.Status)
	assert.Empty(t, st.Workflow.Error)
	assert.False(t, st.Active("workflow"))
}

func TestService_TakingTooLongIsNotAFailure(t *testing.T) {
	svc, _, tr := newTestService(t)
	_, err := svc.StartWorkflow(context.Background(), validInputs)
	require.NoError(t, err)
	tr.last(t, backend.KindWorkflow).cb.OnTransportError(&progress.AbandonedError{Cause: progress.ErrTakingTooLong})

	st := svc.State()
	assert.True(t, st.Workflow.Abandoned)
	assert.Equal(t, "job is taking too long, please try again", st.Workflow.GiveUpReason)
	assert.NotEqual(t, progress.StatusFailed, st.Workflow.Status)

	res, err := svc.RetryWorkflow(context.Background())
	require.NoError(t, err)
	st = svc.State()
	assert.Equal(t, res.WorkflowID, st.Workflow.WorkflowID)
	assert.False(t, st.Workflow.Abandoned)
	assert.Empty(t, st.Workflow.GiveUpReason)
}

func TestService_InterviewGiveUp(t *testing.T) {
	svc, _, tr := newTestService(t)
	_, err := svc.StartWorkflow(context.Background(), validInputs)
	require.NoError(t, err)
	_, err = svc.PrepareInterview(context.Background())
	require.NoError(t, err)
	tr.last(t, backend.KindInterview).cb.OnTransportError(&progress.AbandonedError{Cause: progress.ErrJobNotFound})

	st := svc.State()
	assert.True(t, st.Interview.Abandoned)
	assert.Equal(t, progress.StatusRunning, st.Interview.Status)
	assert.False(t, st.Active("interview"))
}

func TestService_StallAdvisory(t *testing.T) {
	svc, _, tr := newTestService(t)
	_, err := svc.StartWorkflow(context.Background(), validInputs)
	require.NoError(t, err)
	cb := tr.last(t, backend.KindWorkflow).cb

	cb.OnStall(true)
	st := svc.State()
	assert.True(t, st.Workflow.Stalled)
	assert.True(t, strings.Contains(st.Workflow.Notice, "stuck"))

	cb.OnStall(false)
	st = svc.State()
	assert.False(t, st.Workflow.Stalled)
	assert.Empty(t, st.Workflow.Notice)
}

func TestService_GenerateResumeStartsInterview(t *testing.T) {
	svc, b, tr := newTestService(t)
	b.interviewData = json.RawMessage(`{"theme_1_behavioral_interview":{}}`)
	_, err := svc.StartWorkflow(context.Background(), validInputs)
	require.NoError(t, err)

	generated, err := svc.GenerateResume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "# Final", generated.FinalResume)

	st := svc.State()
	require.NotNil(t, st.FinalResume)
	assert.Equal(t, "# Final", *st.FinalResume)
	assert.Equal(t, "iv-1", st.Interview.InterviewID)
	assert.Equal(t, progress.StatusRunning, st.Interview.Status)

	call := tr.last(t, backend.KindInterview)
	call.cb.OnUpdate(progress.Snapshot{JobID: "iv-1", Status: progress.StatusCompleted, Progress: 100})
	require.Eventually(t, func() bool {
		return len(svc.State().Interview.Result) > 0
	}, time.Second, 5*time.Millisecond)
}

func TestService_GenerateResumeKeepsResumeWhenInterviewFails(t *testing.T) {
	svc, b, _ := newTestService(t)
	_, err := svc.StartWorkflow(context.Background(), validInputs)
	require.NoError(t, err)
	b.prepareErr = &backend.APIError{StatusCode: 500, Message: "agent5 down"}

	_, err = svc.GenerateResume(context.Background())
	require.NoError(t, err)
	st := svc.State()
	require.NotNil(t, st.FinalResume)
	assert.Equal(t, "agent5 down", st.Interview.Notice)
}

func TestService_ResumeReattachesRunningJobs(t *testing.T) {
	store, err := session.NewStore(context.Background(), nil)
	require.NoError(t, err)
	_, err = store.Update(func(st session.AppState) session.AppState {
		st.Workflow.WorkflowID = "wf-9"
		st.Workflow.Status = progress.StatusRunning
		st.Interview.InterviewID = "iv-3"
		st.Interview.Status = progress.StatusRunning
		st.Interview.Abandoned = true
		return st
	})
	require.NoError(t, err)

	tr := &fakeTracker{}
	svc := New(context.Background(), store, &fakeBackend{}, tr)
	svc.Resume()

	calls := tr.all()
	require.Len(t, calls, 1)
	assert.Equal(t, backend.KindWorkflow, calls[0].kind)
	assert.Equal(t, "wf-9", calls[0].id)
}

func TestService_ResetClearsEverything(t *testing.T) {
	hookRan := false
	svc, _, tr := newTestService(t, WithResetHook(func(context.Context) error {
		hookRan = true
		return nil
	}))
	ctx := context.Background()
	_, err := svc.StartWorkflow(ctx, validInputs)
	require.NoError(t, err)
	failCurrentWorkflow(t, svc, tr)
	_, err = svc.RetryWorkflow(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.Reset(ctx))
	assert.True(t, hookRan)
	assert.True(t, tr.last(t, backend.KindWorkflow).canceled.Load())
	assert.Equal(t, 0, svc.Retries().Count)
	st := svc.State()
	assert.Empty(t, st.Workflow.WorkflowID)
	assert.Empty(t, st.Inputs.JDText)
}

func TestService_UploadResumePDFStoresText(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.UploadResumePDF(context.Background(), "cv.docx", strings.NewReader("x"))
	assert.True(t, IsErrorType(err, ErrValidation))

	_, err = svc.UploadResumePDF(context.Background(), "CV.PDF", strings.NewReader("Jane Doe"))
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", svc.State().Inputs.ResumeText)
}

func TestService_ExportResumeValidatesFormat(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ExportResume(context.Background(), "rtf", "")
	assert.True(t, IsErrorType(err, ErrValidation))

	handle, err := svc.ExportResume(context.Background(), "PDF", "Resume")
	require.NoError(t, err)
	assert.Equal(t, "/download/pdf", handle.DownloadURL)
}

func TestService_SetPage(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.SetPage("nowhere")
	assert.True(t, IsErrorType(err, ErrValidation))

	st, err := svc.SetPage(session.PageInterview)
	require.NoError(t, err)
	assert.Equal(t, session.PageInterview, st.CurrentPage)
}

func TestService_LoadDashboardAndInterview(t *testing.T) {
	svc, b, _ := newTestService(t)
	b.interviewData = json.RawMessage(`{"theme_3_business_domain":{}}`)

	dash, err := svc.LoadDashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25.0, dash.FeedbackStatus.CompletionPercentage)
	assert.NotNil(t, dash.Recommendations)

	_, err = svc.LoadInterview(context.Background())
	assert.True(t, IsErrorType(err, ErrValidation))

	_, err = svc.StartWorkflow(context.Background(), validInputs)
	require.NoError(t, err)
	_, err = svc.PrepareInterview(context.Background())
	require.NoError(t, err)

	bundle, err := svc.LoadInterview(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"theme_3_business_domain":{}}`, string(bundle.Result))
	assert.Nil(t, bundle.Projects)
}
