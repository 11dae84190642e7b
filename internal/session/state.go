package session

import (
	"encoding/json"
	"time"

	"github.com/MimeLyc/jobhunt-companion/internal/progress"
)

// StorageKey is the fixed key the state record is persisted under.
const StorageKey = "ai-job-hunting-storage"

type Page string

const (
	PageInput     Page = "input"
	PageDashboard Page = "dashboard"
	PageInterview Page = "interview"
)

func (p Page) Valid() bool {
	return p == PageInput || p == PageDashboard || p == PageInterview
}

type Inputs struct {
	JDText       string `json:"jd_text"`
	ResumeText   string `json:"resume_text"`
	ProjectsText string `json:"projects_text"`
}

// WorkflowState is the tracked workflow. Abandoned is set when the client
// stopped tracking on its own; Status keeps the last outcome the backend
// reported.
type WorkflowState struct {
	WorkflowID   string                     `json:"workflow_id"`
	Status       progress.Status            `json:"status"`
	CurrentStep  string                     `json:"current_step"`
	Progress     int                        `json:"progress"`
	Message      string                     `json:"message"`
	Results      map[string]json.RawMessage `json:"results"`
	Error        string                     `json:"error,omitempty"`
	Stalled      bool                       `json:"stalled,omitempty"`
	Notice       string                     `json:"notice,omitempty"`
	Abandoned    bool                       `json:"abandoned,omitempty"`
	GiveUpReason string                     `json:"give_up_reason,omitempty"`
}

type InterviewState struct {
	InterviewID  string          `json:"interview_id"`
	Status       progress.Status `json:"status"`
	Progress     int             `json:"progress"`
	Message      string          `json:"message"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	Stalled      bool            `json:"stalled,omitempty"`
	Notice       string          `json:"notice,omitempty"`
	Abandoned    bool            `json:"abandoned,omitempty"`
	GiveUpReason string          `json:"give_up_reason,omitempty"`
}

// AppState is the whole persisted record. It is always replaced as a unit.
type AppState struct {
	Inputs      Inputs         `json:"inputs"`
	Workflow    WorkflowState  `json:"workflow"`
	Interview   InterviewState `json:"interview"`
	FinalResume *string        `json:"final_resume"`
	CurrentPage Page           `json:"current_page"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Initial is the state of a fresh session.
func Initial() AppState {
	return AppState{
		Workflow: WorkflowState{
			Status:  progress.StatusIdle,
			Results: map[string]json.RawMessage{},
		},
		Interview: InterviewState{
			Status: progress.StatusIdle,
		},
		CurrentPage: PageInput,
	}
}

// Clone returns a deep copy.
func (s AppState) Clone() AppState {
	out := s
	if s.Workflow.Results != nil {
		out.Workflow.Results = make(map[string]json.RawMessage, len(s.Workflow.Results))
		for k, v := range s.Workflow.Results {
			out.Workflow.Results[k] = cloneRaw(v)
		}
	}
	out.Interview.Result = cloneRaw(s.Interview.Result)
	if s.FinalResume != nil {
		resume := *s.FinalResume
		out.FinalResume = &resume
	}
	return out
}

// Active reports whether a job of the given kind is being worked on and
// still tracked.
func (s AppState) Active(kind string) bool {
	switch kind {
	case "workflow":
		return s.Workflow.WorkflowID != "" && s.Workflow.Status == progress.StatusRunning && !s.Workflow.Abandoned
	case "interview":
		return s.Interview.InterviewID != "" && s.Interview.Status == progress.StatusRunning && !s.Interview.Abandoned
	}
	return false
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
