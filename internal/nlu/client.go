// Package nlu defines the opaque NLU collaborator: a prompt goes in, a
// message expected to contain JSON comes out. The engine never depends on a
// specific model; callers tolerate malformed payloads and degrade gracefully.
package nlu

import (
	"context"
	"fmt"
)

// Request is the input to an Execute call.
type Request struct {
	Prompt      string   `json:"prompt"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"maxTokens,omitempty"`
}

// Response is the raw collaborator output. Message is expected to be a JSON
// payload matching the caller's shape, but nothing enforces that.
type Response struct {
	Message string `json:"message"`
}

// Client is the interface all NLU providers must implement.
type Client interface {
	// Execute sends a prompt and returns the provider's message.
	Execute(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider name.
	Name() string
}

// ProviderError is returned when an NLU provider fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP-like status code (401, 429, 500, etc.)
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}
