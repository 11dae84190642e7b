package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/MimeLyc/jobhunt-companion/internal/backend"
	"github.com/MimeLyc/jobhunt-companion/internal/feedback"
	"github.com/MimeLyc/jobhunt-companion/internal/progress"
	"github.com/MimeLyc/jobhunt-companion/internal/render"
	"github.com/MimeLyc/jobhunt-companion/pkg/log"
)

type workflowViewsResponse struct {
	WorkflowID string             `json:"workflow_id"`
	Status     progress.Status    `json:"status"`
	StepLabel  string             `json:"step_label"`
	Steps      []render.Step      `json:"steps"`
	Tabs       []render.Tab       `json:"tabs"`
	Scores     render.MatchScores `json:"scores"`
}

type interviewViewsResponse struct {
	InterviewID string          `json:"interview_id"`
	Status      progress.Status `json:"status"`
	Tabs        []render.Tab    `json:"tabs"`
	Projects    json.RawMessage `json:"projects,omitempty"`
}

type targetView struct {
	feedback.Target
	Decision feedback.Decision `json:"decision,omitempty"`
}

type dashboardResponse struct {
	Recommendations *backend.Recommendations `json:"recommendations"`
	FeedbackStatus  *backend.FeedbackStatus  `json:"feedback_status"`
	Targets         []targetView             `json:"targets"`
}

func (s *Server) handleWorkflowViews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	st := s.svc.State()
	var recs json.RawMessage
	if _, ok := st.Workflow.Results["agent4"]; !ok && st.Workflow.Status == progress.StatusCompleted {
		// résumé tab falls back to the recommendations endpoint
		if dash, err := s.svc.LoadDashboard(r.Context()); err != nil {
			log.Warn("Recommendations unavailable for views: %v", err)
		} else if data, err := json.Marshal(dash.Recommendations); err == nil {
			recs = data
		}
	}

	writeJSON(w, http.StatusOK, workflowViewsResponse{
		WorkflowID: st.Workflow.WorkflowID,
		Status:     st.Workflow.Status,
		StepLabel:  render.StepLabel(st.Workflow.CurrentStep),
		Steps:      render.Steps(st.Workflow.CurrentStep),
		Tabs:       render.WorkflowTabs(st.Workflow.Results, recs),
		Scores:     render.Scores(st.Workflow.Results),
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	dash, err := s.svc.LoadDashboard(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	decided, err := s.feedback.Decisions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	targets := feedback.Targets(dash.Recommendations)
	views := make([]targetView, 0, len(targets))
	for _, t := range targets {
		views = append(views, targetView{Target: t, Decision: decided[t.ID]})
	}
	writeJSON(w, http.StatusOK, dashboardResponse{
		Recommendations: dash.Recommendations,
		FeedbackStatus:  dash.FeedbackStatus,
		Targets:         views,
	})
}

func (s *Server) handleInterviewViews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	st := s.svc.State()
	if st.Interview.Status != progress.StatusCompleted {
		writeJSON(w, http.StatusOK, interviewViewsResponse{
			InterviewID: st.Interview.InterviewID,
			Status:      st.Interview.Status,
			Tabs:        render.InterviewTabs(nil),
		})
		return
	}

	bundle, err := s.svc.LoadInterview(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, interviewViewsResponse{
		InterviewID: st.Interview.InterviewID,
		Status:      st.Interview.Status,
		Tabs:        render.InterviewTabs(bundle.Result),
		Projects:    bundle.Projects,
	})
}
