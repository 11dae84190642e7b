package backend

import "encoding/json"

// Kind names the two job families the backend runs.
type Kind string

const (
	KindWorkflow  Kind = "workflow"
	KindInterview Kind = "interview"
)

// Progress is one status snapshot as served by the progress endpoints and the stream.
// Workflow snapshots carry Results, interview snapshots carry Result.
type Progress struct {
	Status      string                     `json:"status"`
	CurrentStep string                     `json:"current_step"`
	Progress    float64                    `json:"progress"`
	Message     string                     `json:"message"`
	Results     map[string]json.RawMessage `json:"results,omitempty"`
	Result      json.RawMessage            `json:"result,omitempty"`
	Error       string                     `json:"error,omitempty"`
}

type WorkflowInputs struct {
	JDText       string `json:"jd_text"`
	ResumeText   string `json:"resume_text"`
	ProjectsText string `json:"projects_text,omitempty"`
}

type startWorkflowResponse struct {
	Status     string `json:"status"`
	WorkflowID string `json:"workflow_id"`
	Message    string `json:"message"`
}

type workflowResultResponse struct {
	Status     string                     `json:"status"`
	WorkflowID string                     `json:"workflow_id"`
	Results    map[string]json.RawMessage `json:"results"`
}

type prepareInterviewRequest struct {
	WorkflowID string `json:"workflow_id"`
}

type prepareInterviewResponse struct {
	Status      string `json:"status"`
	InterviewID string `json:"interview_id"`
	Message     string `json:"message"`
}

type interviewResultResponse struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
}

// FeedbackRequest is one accept/reject/modify decision for a recommendation item.
type FeedbackRequest struct {
	FeedbackType    string `json:"feedback_type"`
	ItemID          string `json:"item_id"`
	Feedback        string `json:"feedback"`
	AdditionalNotes string `json:"additional_notes,omitempty"`
	ModifiedText    string `json:"modified_text,omitempty"`
}

// FeedbackStatus is the backend's aggregate of decided vs. total recommendations.
type FeedbackStatus struct {
	TotalRecommendations int     `json:"total_recommendations"`
	FeedbackReceived     int     `json:"feedback_received"`
	PendingFeedback      int     `json:"pending_feedback"`
	CompletionPercentage float64 `json:"completion_percentage"`
}

type FeedbackResponse struct {
	Status         string            `json:"status"`
	FeedbackResult json.RawMessage   `json:"feedback_result,omitempty"`
	Results        []json.RawMessage `json:"results,omitempty"`
	FeedbackStatus FeedbackStatus    `json:"feedback_status"`
}

type feedbackStatusResponse struct {
	Status         string         `json:"status"`
	FeedbackStatus FeedbackStatus `json:"feedback_status"`
}

// ExperienceEntry identifies one résumé experience block.
type ExperienceEntry struct {
	Title      string `json:"title"`
	Company    string `json:"company"`
	Duration   string `json:"duration,omitempty"`
	EntryIndex int    `json:"entry_index"`
}

type ExperienceReplacement struct {
	ExperienceToReplace     ExperienceEntry `json:"experience_to_replace"`
	ReplacementRationale    json.RawMessage `json:"replacement_rationale,omitempty"`
	ReplacementInstructions json.RawMessage `json:"replacement_instructions,omitempty"`
}

type ExperienceOptimization struct {
	ExperienceEntry ExperienceEntry `json:"experience_entry"`
	Details         json.RawMessage `json:"optimizations,omitempty"`
}

type FormatAdjustmentGroup struct {
	ExperienceEntry ExperienceEntry   `json:"experience_entry"`
	Adjustments     []json.RawMessage `json:"adjustments"`
}

type SkillsOptimization struct {
	HasSkillsSection bool            `json:"has_skills_section"`
	CurrentSkills    json.RawMessage `json:"current_skills,omitempty"`
}

// Recommendations is the agent4 output the user gives feedback on.
type Recommendations struct {
	ExperienceReplacements    []ExperienceReplacement  `json:"experience_replacements"`
	ExperienceOptimizations   []ExperienceOptimization `json:"experience_optimizations"`
	FormatContentAdjustments  []FormatAdjustmentGroup  `json:"format_content_adjustments"`
	SkillsSectionOptimization *SkillsOptimization      `json:"skills_section_optimization,omitempty"`
}

type recommendationsResponse struct {
	Status          string          `json:"status"`
	Recommendations Recommendations `json:"recommendations"`
	UserFeedback    json.RawMessage `json:"user_feedback,omitempty"`
}

// GeneratedResume is the final résumé built from accepted recommendations.
type GeneratedResume struct {
	FinalResume          string          `json:"final_resume"`
	ClassifiedProjects   json.RawMessage `json:"classified_projects,omitempty"`
	ModificationsApplied json.RawMessage `json:"modifications_applied,omitempty"`
	Summary              json.RawMessage `json:"summary,omitempty"`
}

type exportRequest struct {
	Format string `json:"format"`
	Title  string `json:"title"`
}

// ExportHandle points at a rendered résumé file on the backend.
type ExportHandle struct {
	Status       string          `json:"status"`
	DownloadURL  string          `json:"download_url"`
	ExportResult json.RawMessage `json:"export_result,omitempty"`
}

// ExtractedResume is the text pulled out of an uploaded PDF.
type ExtractedResume struct {
	ExtractedText string `json:"extracted_text"`
	FileName      string `json:"file_name"`
	FileSize      int64  `json:"file_size"`
	TextLength    int    `json:"text_length"`
}

type classifiedProjectsResponse struct {
	Status             string          `json:"status"`
	ClassifiedProjects json.RawMessage `json:"classified_projects"`
}

type healthResponse struct {
	Status string `json:"status"`
}
