// Package render maps finished job payloads onto read-only views.
package render

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Tab is one view of a finished job. Data is the raw payload slice the view shows.
type Tab struct {
	ID    string          `json:"id"`
	Label string          `json:"label"`
	Empty bool            `json:"empty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// WorkflowTabs builds the dashboard tabs from agent results. recs is used for
// the résumé tab when agent4 is absent from results.
func WorkflowTabs(results map[string]json.RawMessage, recs json.RawMessage) []Tab {
	agent2 := object(results["agent2"])
	agent4 := results["agent4"]
	if isBlank(agent4) {
		agent4 = recs
	}
	return []Tab{
		newTab("match", "Match Analysis", agent2["match_assessment"]),
		newTab("profile", "Candidate Profile", agent2["ideal_candidate_profile"]),
		newTab("scenario", "Work Scenario", agent2["job_role_team_analysis"]),
		newTab("projects", "Projects", listField(results["agent3"], "selected_projects")),
		newTab("resume", "Resume Optimization", agent4),
	}
}

// InterviewTabs builds the interview views from an interview result.
func InterviewTabs(result json.RawMessage) []Tab {
	themes := object(result)
	return []Tab{
		newTab("behavioral", "Behavioral Interview", themes["theme_1_behavioral_interview"]),
		newTab("projects", "Project Deep-Dive", listField(themes["theme_2_project_deep_dive"], "selected_projects")),
		newTab("business", "Business Domain", listField(themes["theme_3_business_domain"], "business_questions")),
	}
}

// MatchScores are the numeric scores of a match assessment on a 0 to 5 scale.
type MatchScores struct {
	Overall    float64 `json:"overall"`
	Experience float64 `json:"experience"`
	Skills     float64 `json:"skills"`
	Education  float64 `json:"education"`
	Level      string  `json:"level"`
	Band       string  `json:"band"`
}

// Scores reads the match assessment of agent2. Scores may be sent as numbers
// or numeric strings; anything else counts as 0.
func Scores(results map[string]json.RawMessage) MatchScores {
	m := object(object(results["agent2"])["match_assessment"])
	overall := number(m["overall_match_score"])
	return MatchScores{
		Overall:    overall,
		Experience: number(m["experience_match_score"]),
		Skills:     number(m["skills_match_score"]),
		Education:  number(m["education_match_score"]),
		Level:      text(m["match_level"]),
		Band:       Band(overall),
	}
}

// Band buckets a score: 4 and up is strong, 3 and up is fair.
func Band(score float64) string {
	switch {
	case score >= 4:
		return "strong"
	case score >= 3:
		return "fair"
	default:
		return "weak"
	}
}

func newTab(id, label string, data json.RawMessage) Tab {
	if isBlank(data) {
		return Tab{ID: id, Label: label, Empty: true}
	}
	return Tab{ID: id, Label: label, Data: append(json.RawMessage(nil), data...)}
}

// listField returns raw when its field holds a non-empty list, nil otherwise.
func listField(raw json.RawMessage, field string) json.RawMessage {
	var items []json.RawMessage
	if err := json.Unmarshal(object(raw)[field], &items); err != nil || len(items) == 0 {
		return nil
	}
	return raw
}

func object(raw json.RawMessage) map[string]json.RawMessage {
	var m map[string]json.RawMessage
	if isBlank(raw) || json.Unmarshal(raw, &m) != nil {
		return map[string]json.RawMessage{}
	}
	return m
}

func isBlank(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null")) || bytes.Equal(t, []byte("{}"))
}

func number(raw json.RawMessage) float64 {
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return f
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		// "4.5/5" style scores keep their leading number
		s = strings.TrimSpace(s)
		if i := strings.IndexFunc(s, func(r rune) bool { return (r < '0' || r > '9') && r != '.' && r != '-' }); i >= 0 {
			s = s[:i]
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return 0
}

func text(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return ""
}
