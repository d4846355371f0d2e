package domain

import (
	"fmt"
	"time"
)

// ActionType classifies an extracted action item.
type ActionType string

const (
	ActionTypeTask        ActionType = "task"
	ActionTypeMeeting     ActionType = "meeting"
	ActionTypeDeadline    ActionType = "deadline"
	ActionTypeDecision    ActionType = "decision"
	ActionTypeInformation ActionType = "information"
)

// ParseActionType validates a raw action type string.
func ParseActionType(s string) (ActionType, error) {
	switch ActionType(s) {
	case ActionTypeTask, ActionTypeMeeting, ActionTypeDeadline,
		ActionTypeDecision, ActionTypeInformation:
		return ActionType(s), nil
	default:
		return "", fmt.Errorf("unknown action type: %q", s)
	}
}

// ParticipantRole describes how an alias relates to an action item.
type ParticipantRole string

const (
	RoleOwner  ParticipantRole = "owner"
	RoleWaiter ParticipantRole = "waiter"
)

// Candidate is an extraction result before the confidence gate.
// Confidence is the model's self-reported score in [0,1].
type Candidate struct {
	ActionType  ActionType
	Description string
	DueDate     *time.Time
	Confidence  float64
	Owners      []string
	Waiters     []string
}

// ActionItem is a persisted action item. Dismiss marks items whose
// confidence fell below the run threshold; they are kept for audit
// and can be un-dismissed through the API.
type ActionItem struct {
	ID              int64             `json:"id,string"`
	ActionType      ActionType        `json:"action_type"`
	Description     string            `json:"description"`
	DueDate         *time.Time        `json:"due_date,omitempty"`
	ConfidenceScore float64           `json:"confidence_score"`
	SourceMessageID string            `json:"source_message_id"`
	Dismiss         bool              `json:"dismiss"`
	Owners          []string          `json:"owners,omitempty"`
	Waiters         []string          `json:"waiters,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// ActionItemFilter narrows action item listings.
type ActionItemFilter struct {
	Dismissed       *bool
	DueBefore       *time.Time
	Owner           *string
	SourceMessageID *string
	Limit           int
	Offset          int
}
