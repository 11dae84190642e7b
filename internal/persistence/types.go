package persistence

import "time"

// Decision is one feedback choice the user made on a recommendation item.
type Decision struct {
	WorkflowID   string    `json:"workflow_id"`
	ItemID       string    `json:"item_id"`
	FeedbackType string    `json:"feedback_type"`
	Decision     string    `json:"decision"`
	ModifiedText string    `json:"modified_text,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	DecidedAt    time.Time `json:"decided_at"`
}
