// Package board contains adapters that push accepted action items to
// external kanban boards.
package board

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"mailminer/core/domain"
	"mailminer/core/port/out"
	"mailminer/pkg/apperr"
)

const trelloBaseURL = "https://api.trello.com/1"

// TrelloClient implements out.BoardSyncPort by creating one card per
// accepted action item in a fixed list.
type TrelloClient struct {
	apiKey  string
	token   string
	listID  string
	baseURL string
	client  *http.Client
}

var _ out.BoardSyncPort = (*TrelloClient)(nil)

type TrelloConfig struct {
	APIKey string
	Token  string
	// ListID is the Trello list that receives new cards.
	ListID string
	// BaseURL overrides the API host, for tests.
	BaseURL string
	Timeout time.Duration
}

func NewTrelloClient(cfg TrelloConfig) *TrelloClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = trelloBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TrelloClient{
		apiKey:  cfg.APIKey,
		token:   cfg.Token,
		listID:  cfg.ListID,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type trelloCard struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ShortURL string `json:"shortUrl"`
}

// Push creates a card named after the action item. The card
// description carries the item's provenance.
func (c *TrelloClient) Push(ctx context.Context, item *domain.ActionItem) error {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("token", c.token)
	params.Set("idList", c.listID)
	params.Set("name", cardName(item))
	params.Set("desc", cardDescription(item))
	if item.DueDate != nil {
		params.Set("due", item.DueDate.Format(time.RFC3339))
	}

	endpoint := fmt.Sprintf("%s/cards?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build card request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperr.SyncFailed("trello", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperr.SyncFailed("trello",
			fmt.Errorf("create card: %d %s", resp.StatusCode, string(body)))
	}

	var card trelloCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return apperr.SyncFailed("trello", fmt.Errorf("decode card response: %w", err))
	}
	return nil
}

func cardName(item *domain.ActionItem) string {
	name := item.Description
	if len(name) > 120 {
		name = name[:117] + "..."
	}
	if name == "" {
		name = fmt.Sprintf("%s from email", item.ActionType)
	}
	return name
}

func cardDescription(item *domain.ActionItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", item.Description)
	fmt.Fprintf(&b, "Type: %s\n", item.ActionType)
	fmt.Fprintf(&b, "Confidence: %.2f\n", item.ConfidenceScore)
	fmt.Fprintf(&b, "Source message: %s\n", item.SourceMessageID)
	if len(item.Owners) > 0 {
		fmt.Fprintf(&b, "Owners: %s\n", strings.Join(item.Owners, ", "))
	}
	if len(item.Waiters) > 0 {
		fmt.Fprintf(&b, "Waiting: %s\n", strings.Join(item.Waiters, ", "))
	}
	return b.String()
}
