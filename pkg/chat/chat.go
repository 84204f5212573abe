// Package chat is the open-ended conversation capability and the router's
// fallback.
package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sidv1711/slack-bot/pkg/adapter"
	"github.com/sidv1711/slack-bot/pkg/logging"
	"github.com/sidv1711/slack-bot/pkg/service"
)

// Name is the capability name used for routing.
const Name = "general_chat"

const description = "general conversation and information queries"

// Apology is returned as the reply text when the model cannot be reached.
const Apology = "I apologize, but I'm having trouble responding right now. Please try again."

var blocklist = []string{"hack", "crack", "illegal", "harmful", "dangerous"}

var toneBuckets = []struct {
	tone  string
	words []string
}{
	{"apologetic", []string{"sorry", "apologize", "unfortunately"}},
	{"enthusiastic", []string{"great", "excellent", "wonderful", "amazing"}},
	{"helpful", []string{"help", "assist", "support", "guide"}},
}

const chatInstructions = `You are a helpful, friendly, and knowledgeable AI assistant. You can engage in natural conversation while being informative and supportive.

%s

CONVERSATION GUIDELINES:
1. Be conversational and friendly
2. Provide helpful and accurate information
3. Ask clarifying questions when needed
4. Acknowledge when you don't know something
5. Keep responses concise but informative
6. Show empathy and understanding
7. Offer suggestions or next steps when appropriate

TOPICS YOU CAN HELP WITH:
- General questions and information
- Explanations of concepts
- Advice and recommendations
- Problem-solving discussions
- Creative brainstorming
- Learning and education
- Technology questions (non-coding)

IMPORTANT: If the user asks about specialized tasks like:
- Database queries or SQL
- Code generation or programming
- Technical analysis or debugging
- Document generation

Politely suggest they might want to use specific tools for those tasks, but still try to provide general help if possible.`

// Handler implements service.Service for general conversation.
type Handler struct {
	llm    adapter.Adapter
	logger *zap.Logger
}

// New creates the handler.
func New(llm adapter.Adapter, logger *zap.Logger) *Handler {
	return &Handler{llm: llm, logger: logging.OrNop(logger)}
}

// Name implements service.Service.
func (h *Handler) Name() string { return Name }

// Description implements service.Service.
func (h *Handler) Description() string { return description }

func buildPrompt(rc service.RequestContext) string {
	var userInfo strings.Builder
	if name, ok := rc.String(service.KeyUserName); ok {
		fmt.Fprintf(&userInfo, "The user's name is %s. ", name)
	}
	if role, ok := rc.String(service.KeyUserRole); ok {
		fmt.Fprintf(&userInfo, "They work as a %s. ", role)
	}
	return service.SystemPrompt(description, fmt.Sprintf(chatInstructions, userInfo.String()))
}

// Process implements service.Service. Prior turns from the context are
// placed between the system prompt and the new message.
func (h *Handler) Process(ctx context.Context, input string, rc service.RequestContext) *service.Result {
	input = strings.TrimSpace(input)
	if input == "" {
		return service.Failure(Name, service.TypeConversation, service.ErrEmptyInput)
	}

	history := rc.History()
	messages := make([]adapter.Message, 0, len(history)+2)
	messages = append(messages, adapter.Message{Role: adapter.RoleSystem, Content: buildPrompt(rc)})
	messages = append(messages, history...)
	messages = append(messages, adapter.Message{Role: adapter.RoleUser, Content: input})

	resp, err := h.llm.Complete(ctx, &adapter.CompletionRequest{
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   600,
	})
	if err != nil {
		err = service.LLMError(err)
		h.logger.Warn("chat reply failed", zap.Error(err))
		r := service.Failure(Name, service.TypeConversation, err)
		r.Chat = &service.ChatPayload{UserMessage: input, Response: Apology}
		return r
	}

	reply := strings.TrimSpace(resp.Content)
	return &service.Result{
		Service:     Name,
		ServiceType: service.TypeConversation,
		Success:     true,
		Chat: &service.ChatPayload{
			UserMessage: input,
			Response:    reply,
			Tone:        Tone(reply),
		},
	}
}

// Tone buckets a reply by keyword for telemetry.
func Tone(reply string) string {
	if reply == "" {
		return "neutral"
	}
	lower := strings.ToLower(reply)
	for _, bucket := range toneBuckets {
		if _, found := service.FirstSubstring(lower, bucket.words); found {
			return bucket.tone
		}
	}
	if strings.Contains(reply, "?") {
		return "inquisitive"
	}
	return "informative"
}

// Validate implements service.Service.
func (h *Handler) Validate(input string) service.Verdict {
	if strings.TrimSpace(input) == "" {
		return service.Reject("Empty message cannot be processed", "Please type a message or question")
	}
	if kw, found := service.FirstSubstring(strings.ToLower(input), blocklist); found {
		return service.Reject(fmt.Sprintf("Message appears to contain inappropriate content: '%s'", kw),
			"Please ask about something else I can help with")
	}
	return service.Accept("Message is suitable for general conversation")
}

// Capabilities implements service.Service.
func (h *Handler) Capabilities() service.Capability {
	return service.Capability{
		Name:        Name,
		Description: "Engage in natural conversation and provide general information",
		Features: []string{
			"Natural dialogue",
			"Question answering",
			"Explanations and definitions",
			"Advice and recommendations",
			"Creative brainstorming",
			"Problem discussion",
		},
		Examples: h.Examples(),
	}
}

// Examples implements service.Service.
func (h *Handler) Examples() []service.Example {
	return []service.Example{
		{Input: "Hi! How are you doing today?", Output: "Friendly greeting and offer to help"},
		{Input: "Can you explain what machine learning is?", Output: "Clear explanation of machine learning concepts"},
		{Input: "I'm feeling stressed about a project deadline", Output: "Empathetic response with stress management suggestions"},
		{Input: "What's the best way to learn a new programming language?", Output: "Structured advice on learning approaches and resources"},
		{Input: "Tell me something interesting about space", Output: "Engaging space facts or recent discoveries"},
	}
}
