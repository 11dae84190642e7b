package render

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowTabs(t *testing.T) {
	results := map[string]json.RawMessage{
		"agent2": json.RawMessage(`{
			"match_assessment": {"overall_match_score": "4.2", "match_level": "High"},
			"ideal_candidate_profile": {"required_skills": ["Go"]}
		}`),
		"agent3": json.RawMessage(`{"selected_projects": []}`),
	}
	recs := json.RawMessage(`{"experience_replacements": []}`)

	tabs := WorkflowTabs(results, recs)
	require.Len(t, tabs, 5)

	byID := map[string]Tab{}
	for _, tab := range tabs {
		byID[tab.ID] = tab
	}
	assert.False(t, byID["match"].Empty)
	assert.JSONEq(t, `{"overall_match_score": "4.2", "match_level": "High"}`, string(byID["match"].Data))
	assert.False(t, byID["profile"].Empty)
	assert.True(t, byID["scenario"].Empty)
	assert.True(t, byID["projects"].Empty)
	assert.False(t, byID["resume"].Empty)
	assert.JSONEq(t, string(recs), string(byID["resume"].Data))
	assert.Equal(t, "Resume Optimization", byID["resume"].Label)
}

func TestWorkflowTabs_NothingYet(t *testing.T) {
	for _, tab := range WorkflowTabs(nil, nil) {
		assert.True(t, tab.Empty, tab.ID)
		assert.Nil(t, tab.Data)
	}
}

func TestInterviewTabs(t *testing.T) {
	result := json.RawMessage(`{
		"theme_1_behavioral_interview": {"top_10_behavioral_questions": [{"question": "Tell me"}]},
		"theme_2_project_deep_dive": {"selected_projects": [{"project_name": "Billing"}]},
		"theme_3_business_domain": {"business_questions": []}
	}`)
	tabs := InterviewTabs(result)
	require.Len(t, tabs, 3)
	assert.False(t, tabs[0].Empty)
	assert.False(t, tabs[1].Empty)
	assert.True(t, tabs[2].Empty)

	for _, tab := range InterviewTabs(json.RawMessage(`null`)) {
		assert.True(t, tab.Empty)
	}
}

func TestScores(t *testing.T) {
	results := map[string]json.RawMessage{
		"agent2": json.RawMessage(`{"match_assessment": {
			"overall_match_score": "3.5/5",
			"experience_match_score": 4,
			"skills_match_score": "n/a",
			"match_level": "Medium"
		}}`),
	}
	got := Scores(results)
	assert.Equal(t, 3.5, got.Overall)
	assert.Equal(t, 4.0, got.Experience)
	assert.Zero(t, got.Skills)
	assert.Zero(t, got.Education)
	assert.Equal(t, "Medium", got.Level)
	assert.Equal(t, "fair", got.Band)

	assert.Equal(t, "strong", Band(4))
	assert.Equal(t, "weak", Band(2.9))
}

func TestStepLabel(t *testing.T) {
	assert.Equal(t, "Input Validation", StepLabel("agent1"))
	assert.Equal(t, "JD Analysis", StepLabel("agent2"))
	assert.Equal(t, "Project Packaging", StepLabel("agent3"))
	assert.Equal(t, "Résumé Optimization", StepLabel("agent4"))
	assert.Equal(t, "Completed", StepLabel("completed"))
	assert.Equal(t, "agent9", StepLabel("agent9"))
}

func TestSteps(t *testing.T) {
	states := func(current string) []StepState {
		var out []StepState
		for _, s := range Steps(current) {
			out = append(out, s.State)
		}
		return out
	}
	assert.Equal(t, []StepState{StepActive, StepPending, StepPending, StepPending}, states("agent1"))
	assert.Equal(t, []StepState{StepDone, StepDone, StepActive, StepPending}, states("agent3"))
	assert.Equal(t, []StepState{StepDone, StepDone, StepDone, StepDone}, states("completed"))
	assert.Equal(t, []StepState{StepPending, StepPending, StepPending, StepPending}, states(""))
}
