package out

import "context"

// CompletionPort is the LLM backend. CompleteJSON sends a prompt and
// returns the raw completion text, which callers parse as JSON.
type CompletionPort interface {
	CompleteJSON(ctx context.Context, prompt string) (string, error)
}
