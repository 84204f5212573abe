package adapter

import (
	"context"
)

// Message roles understood by every adapter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes a single chat completion call.
type CompletionRequest struct {
	// Model may be empty; Bounded fills in its default.
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// JSON asks the provider to reply with a single parseable JSON object.
	JSON bool
}

// Adapter defines the interface for LLM provider adapters.
type Adapter interface {
	// Complete sends the transcript to the model and returns its reply.
	Complete(ctx context.Context, req *CompletionRequest) (*Response, error)

	// Name returns the adapter's identifier.
	Name() string

	// Models returns the list of supported models.
	Models() []string
}

// System splits a transcript into its system prompt and the remaining turns.
// Providers without a system role in the message list use this.
func System(messages []Message) (string, []Message) {
	var system string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
