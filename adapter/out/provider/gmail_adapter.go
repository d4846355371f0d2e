// Package provider contains mail provider adapters.
package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"mailminer/core/port/out"
	"mailminer/pkg/apperr"
)

// GmailProvider implements out.MailProvider against the Gmail API.
type GmailProvider struct {
	service  *gmail.Service
	pageSize int64
}

func NewGmailProvider(ctx context.Context, config *oauth2.Config, token *oauth2.Token) (*GmailProvider, error) {
	client := config.Client(ctx, token)
	service, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &GmailProvider{service: service, pageSize: 100}, nil
}

// Fetch lists messages received after since and resolves each to a
// full message. List pagination is followed to the end; a failure on
// any page or message aborts the fetch.
func (p *GmailProvider) Fetch(ctx context.Context, since time.Time, filters out.FetchFilters) ([]out.RawMessage, error) {
	query := buildQuery(since, filters)

	var ids []string
	pageToken := ""
	for {
		req := p.service.Users.Messages.List("me").
			Q(query).
			MaxResults(p.pageSize)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		resp, err := req.Context(ctx).Do()
		if err != nil {
			return nil, apperr.FetchFailed(fmt.Errorf("list messages: %w", err))
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	messages := make([]out.RawMessage, 0, len(ids))
	for _, id := range ids {
		msg, err := p.service.Users.Messages.Get("me", id).
			Format("full").
			Context(ctx).
			Do()
		if err != nil {
			return nil, apperr.FetchFailed(fmt.Errorf("get message %s: %w", id, err))
		}
		messages = append(messages, toRawMessage(msg))
	}
	return messages, nil
}

// buildQuery renders the Gmail search expression. Gmail's after:
// operator has second precision on unix timestamps.
func buildQuery(since time.Time, filters out.FetchFilters) string {
	parts := []string{fmt.Sprintf("after:%d", since.Unix())}
	for _, recipient := range filters.Recipients {
		parts = append(parts, fmt.Sprintf("to:%s", recipient))
	}
	return strings.Join(parts, " ")
}

func toRawMessage(msg *gmail.Message) out.RawMessage {
	raw := out.RawMessage{
		MessageID: msg.Id,
		ThreadID:  msg.ThreadId,
		Timestamp: time.Unix(msg.InternalDate/1000, 0),
	}

	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			switch header.Name {
			case "From":
				raw.Sender = header.Value
			case "To":
				raw.Recipients = append(raw.Recipients, header.Value)
			case "Cc":
				raw.Recipients = append(raw.Recipients, header.Value)
			case "Subject":
				raw.Subject = header.Value
			case "Message-ID", "Message-Id":
				// RFC 5322 id is stabler across mailboxes than the
				// Gmail-internal one
				raw.MessageID = strings.Trim(header.Value, "<>")
			}
		}
		raw.RawContent = parseBody(msg.Payload)
	}

	if raw.RawContent == "" {
		raw.RawContent = msg.Snippet
	}
	return raw
}

// parseBody prefers text/plain and falls back to text/html, which the
// normalizer strips later.
func parseBody(payload *gmail.MessagePart) string {
	text, html := collectBody(payload)
	if text != "" {
		return text
	}
	return html
}

func collectBody(payload *gmail.MessagePart) (text, html string) {
	if payload == nil {
		return "", ""
	}

	if payload.Body != nil && payload.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(payload.Body.Data)
		if err == nil {
			switch payload.MimeType {
			case "text/plain":
				text = string(data)
			case "text/html":
				html = string(data)
			}
		}
	}

	for _, part := range payload.Parts {
		t, h := collectBody(part)
		if text == "" && t != "" {
			text = t
		}
		if html == "" && h != "" {
			html = h
		}
	}
	return text, html
}
