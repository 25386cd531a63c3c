// Package llm provides clients for the external completion and embedding
// services. Clients are constructed once and passed to the components that
// need them; nothing in this package holds process-wide state.
package llm

import "context"

// Message is a single role-tagged message in a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes one chat-completion call.
type CompletionRequest struct {
	// Model is the deployment or model identifier.
	Model string

	// Messages is the ordered conversation to send.
	Messages []Message

	// Temperature controls sampling randomness.
	Temperature float64

	// MaxTokens bounds the completion length.
	MaxTokens int
}

// Completer is the interface for the chat-completion service.
type Completer interface {
	// Complete sends a completion request and returns the raw text of the
	// first choice.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Embedder is the interface for the embedding service.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
