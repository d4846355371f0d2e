// Package extract turns cleaned emails into action item candidates
// through a single JSON-mode LLM completion per email.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"mailminer/core/domain"
	"mailminer/core/port/out"
	"mailminer/pkg/apperr"
	"mailminer/pkg/logger"
)

// Engine extracts action item candidates from one email at a time.
// A malformed or failed completion affects only the email being
// processed; the caller decides how to account for it.
type Engine struct {
	llm            out.CompletionPort
	maxRetries     int
	requireDueDate bool
}

type Options struct {
	// MaxRetries bounds completion attempts per email (total attempts
	// are MaxRetries+1).
	MaxRetries int
	// RequireDueDate drops candidates whose due date the model could
	// not produce in a parseable form. Default keeps them with a nil
	// due date.
	RequireDueDate bool
}

func NewEngine(llm out.CompletionPort, opts Options) *Engine {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Engine{
		llm:            llm,
		maxRetries:     opts.MaxRetries,
		requireDueDate: opts.RequireDueDate,
	}
}

type llmActionItem struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	DueDate     string   `json:"due_date"`
	Owners      []string `json:"owners"`
	Waiters     []string `json:"waiters"`
	Confidence  float64  `json:"confidence"`
}

type llmResponse struct {
	ActionItems []llmActionItem `json:"action_items"`
}

// Extract runs the extraction prompt for one email and returns zero or
// more candidates. An empty slice is a normal outcome, not an error.
func (e *Engine) Extract(ctx context.Context, email *domain.EmailRecord) ([]domain.Candidate, error) {
	prompt := BuildPrompt(email)

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, apperr.ExtractionFailed(email.MessageID, err)
		}

		raw, err := e.llm.CompleteJSON(ctx, prompt)
		if err != nil {
			lastErr = err
			logger.WithField("message_id", email.MessageID).
				WithError(err).
				Warn("completion attempt %d failed", attempt+1)
			continue
		}

		candidates, err := e.parseResponse(raw, email.Timestamp)
		if err != nil {
			lastErr = err
			logger.WithField("message_id", email.MessageID).
				WithError(err).
				Warn("unparseable completion on attempt %d", attempt+1)
			continue
		}
		return candidates, nil
	}

	return nil, apperr.ExtractionFailed(email.MessageID, lastErr)
}

func (e *Engine) parseResponse(raw string, emailDate time.Time) ([]domain.Candidate, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var resp llmResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, fmt.Errorf("unmarshal completion: %w", err)
	}

	candidates := make([]domain.Candidate, 0, len(resp.ActionItems))
	for _, item := range resp.ActionItems {
		description := strings.TrimSpace(item.Description)
		if description == "" {
			continue
		}

		actionType, err := domain.ParseActionType(strings.ToLower(item.Type))
		if err != nil {
			actionType = domain.ActionTypeTask
		}

		dueDate := parseDate(item.DueDate)
		if dueDate == nil && e.requireDueDate {
			continue
		}
		dueDate = sanitizeDueDate(dueDate, emailDate)

		candidates = append(candidates, domain.Candidate{
			ActionType:  actionType,
			Description: description,
			DueDate:     dueDate,
			Confidence:  item.Confidence,
			Owners:      item.Owners,
			Waiters:     item.Waiters,
		})
	}
	return candidates, nil
}

// parseDate accepts RFC 3339 or a bare YYYY-MM-DD date. Anything else
// yields nil rather than an error.
func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return &t
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return &t
	}
	logger.WithField("due_date", s).Warn("unparseable due date from completion")
	return nil
}

// sanitizeDueDate clamps due dates earlier than the email itself up to
// the email timestamp. The model anchors relative dates to the email
// date, so anything before it is a resolution mistake.
func sanitizeDueDate(due *time.Time, emailDate time.Time) *time.Time {
	if due == nil {
		return nil
	}
	if due.Before(emailDate) {
		clamped := emailDate
		return &clamped
	}
	return due
}
