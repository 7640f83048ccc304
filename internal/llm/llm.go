// Package llm is the completion API boundary. Callers depend on Client so the
// provider can be swapped or faked.
package llm

import (
	"context"
	"errors"
)

// Roles used in chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyResponse is returned when the provider answers without any choice.
var ErrEmptyResponse = errors.New("completion returned no content")

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

// CompletionRequest describes a single chat completion call.
type CompletionRequest struct {
	Model        string
	Messages     []Message
	Temperature  float64
	JSONResponse bool
}

// CompletionResponse carries the first choice of a completion.
type CompletionResponse struct {
	Content     string
	TotalTokens int64
}

// Client performs chat completions.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// ClientFactory builds a Client bound to one user's API key.
type ClientFactory func(apiKey string) Client
