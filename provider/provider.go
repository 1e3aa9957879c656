package provider

import "context"

// Client represents different LLM providers
type Client string

const (
	OpenAI    Client = "openai"
	Anthropic Client = "anthropic"
)

// Message represents a message in a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption for one completion call.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// Options tunes a single completion call.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Completer is the transport-level contract a chat-completion backend
// satisfies. Higher layers add model routing and cost accounting on top.
type Completer interface {
	Complete(ctx context.Context, model string, messages []Message, opts Options) (string, Usage, error)
}
