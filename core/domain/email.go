package domain

import (
	"fmt"
	"strings"
	"time"
)

// EmailAddress is a parsed mailbox with an optional display name.
type EmailAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// ParseAddress parses "Display Name <user@host>" or a bare address.
func ParseAddress(raw string) EmailAddress {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return EmailAddress{}
	}

	open := strings.LastIndex(raw, "<")
	end := strings.LastIndex(raw, ">")
	if open >= 0 && end > open {
		name := strings.TrimSpace(raw[:open])
		name = strings.Trim(name, `"`)
		return EmailAddress{
			Name:  name,
			Email: strings.TrimSpace(raw[open+1 : end]),
		}
	}
	return EmailAddress{Email: raw}
}

// ParseAddressList parses a comma-separated recipient header.
func ParseAddressList(raw string) []EmailAddress {
	var out []EmailAddress
	for _, part := range strings.Split(raw, ",") {
		if addr := ParseAddress(part); addr.Email != "" {
			out = append(out, addr)
		}
	}
	return out
}

func (a EmailAddress) String() string {
	if a.Name != "" {
		return fmt.Sprintf("%s <%s>", a.Name, a.Email)
	}
	return a.Email
}

// EmailRecord is a processed email as persisted by the pipeline.
// MessageID is the provider's stable key and is unique across runs;
// ID is the local row identifier.
type EmailRecord struct {
	ID             int64          `json:"id,string"`
	MessageID      string         `json:"message_id"`
	ThreadID       string         `json:"thread_id,omitempty"`
	Subject        string         `json:"subject"`
	Sender         EmailAddress   `json:"sender"`
	Recipients     []EmailAddress `json:"recipients"`
	RawContent     string         `json:"raw_content,omitempty"`
	CleanedContent string         `json:"cleaned_content,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	ProcessedAt    time.Time      `json:"processed_at"`
	CreatedAt      time.Time      `json:"created_at"`
}

// EmailFilter narrows email listings.
type EmailFilter struct {
	Since  *time.Time
	Limit  int
	Offset int
}
