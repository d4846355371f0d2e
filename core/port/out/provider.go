package out

import (
	"context"
	"time"
)

// RawMessage is an email as delivered by the mail provider, before
// normalization. Sender and Recipients are raw header values.
type RawMessage struct {
	MessageID  string
	ThreadID   string
	Subject    string
	Sender     string
	Recipients []string
	RawContent string
	Timestamp  time.Time
}

// FetchFilters narrows a provider fetch beyond the since cursor.
type FetchFilters struct {
	// Recipients restricts the fetch to messages addressed to any of
	// these mailboxes. Empty means no restriction.
	Recipients []string
}

// MailProvider fetches messages received after the given time.
type MailProvider interface {
	Fetch(ctx context.Context, since time.Time, filters FetchFilters) ([]RawMessage, error)
}
