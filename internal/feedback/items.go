package feedback

import (
	"fmt"

	"github.com/MimeLyc/jobhunt-companion/internal/backend"
)

type Decision string

const (
	Accept        Decision = "accept"
	Reject        Decision = "reject"
	FurtherModify Decision = "further_modify"
)

func (d Decision) Valid() bool {
	return d == Accept || d == Reject || d == FurtherModify
}

const (
	TypeExperienceReplacement  = "experience_replacement"
	TypeExperienceOptimization = "experience_optimization"
	TypeFormatAdjustment       = "format_adjustment"
	TypeSkillsOptimization     = "skills_optimization"
)

var knownTypes = map[string]bool{
	TypeExperienceReplacement:  true,
	TypeExperienceOptimization: true,
	TypeFormatAdjustment:       true,
	TypeSkillsOptimization:     true,
}

// Item is one decision on one recommendation.
type Item struct {
	Type         string   `json:"feedback_type"`
	ID           string   `json:"item_id"`
	Decision     Decision `json:"feedback"`
	ModifiedText string   `json:"modified_text,omitempty"`
	Notes        string   `json:"additional_notes,omitempty"`
}

func (it Item) request() backend.FeedbackRequest {
	return backend.FeedbackRequest{
		FeedbackType:    it.Type,
		ItemID:          it.ID,
		Feedback:        string(it.Decision),
		AdditionalNotes: it.Notes,
		ModifiedText:    it.ModifiedText,
	}
}

// Target is a recommendation item the user can decide on.
type Target struct {
	Type  string `json:"feedback_type"`
	ID    string `json:"item_id"`
	Label string `json:"label"`
}

func entryID(e backend.ExperienceEntry) string {
	return fmt.Sprintf("%s_%s_%d", e.Title, e.Company, e.EntryIndex)
}

// Targets lists every decidable item of recs in display order.
func Targets(recs *backend.Recommendations) []Target {
	if recs == nil {
		return nil
	}
	var out []Target
	for i, r := range recs.ExperienceReplacements {
		out = append(out, Target{
			Type:  TypeExperienceReplacement,
			ID:    fmt.Sprintf("replacement_%d", i),
			Label: fmt.Sprintf("Replace %s at %s", r.ExperienceToReplace.Title, r.ExperienceToReplace.Company),
		})
	}
	for _, o := range recs.ExperienceOptimizations {
		out = append(out, Target{
			Type:  TypeExperienceOptimization,
			ID:    "experience_opt_" + entryID(o.ExperienceEntry),
			Label: fmt.Sprintf("Optimize %s at %s", o.ExperienceEntry.Title, o.ExperienceEntry.Company),
		})
	}
	for _, g := range recs.FormatContentAdjustments {
		for j := range g.Adjustments {
			out = append(out, Target{
				Type:  TypeFormatAdjustment,
				ID:    fmt.Sprintf("adjustment_%s_%d", entryID(g.ExperienceEntry), j),
				Label: fmt.Sprintf("Adjustment %d for %s at %s", j+1, g.ExperienceEntry.Title, g.ExperienceEntry.Company),
			})
		}
	}
	if s := recs.SkillsSectionOptimization; s != nil && s.HasSkillsSection {
		out = append(out, Target{Type: TypeSkillsOptimization, ID: "skills_section", Label: "Skills section"})
	}
	return out
}
