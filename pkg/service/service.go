package service

import (
	"context"
	"errors"
	"fmt"
)

// Error taxonomy shared by handlers and the dispatcher. Handlers wrap these
// with %w and surface err.Error() on the result.
var (
	ErrEmptyInput             = errors.New("empty input provided")
	ErrLLMUnavailable         = errors.New("llm unavailable")
	ErrInvalidLLMOutput       = errors.New("invalid llm output")
	ErrSafetyValidationFailed = errors.New("generated query failed safety validation")
	ErrQueryExecutionFailed   = errors.New("database error")
	ErrUnknownCapability      = errors.New("unknown capability")
	ErrValidationRejected     = errors.New("validation rejected")
)

// Service is implemented by every capability handler.
type Service interface {
	// Name is the unique capability name used for routing.
	Name() string
	// Description feeds the classifier prompt and help output.
	Description() string
	// Process never returns nil and never panics on LLM or database failure;
	// failures come back as a Result with Success=false.
	Process(ctx context.Context, input string, rc RequestContext) *Result
	// Validate is local and cheap. It must not call the network.
	Validate(input string) Verdict
	Capabilities() Capability
	Examples() []Example
}

// Example is a documented input and the kind of output it produces.
type Example struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Capability describes a registered handler.
type Capability struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Features    []string  `json:"features,omitempty"`
	Examples    []Example `json:"examples,omitempty"`
}

// Verdict is the outcome of a pre-flight validation.
type Verdict struct {
	Valid      bool   `json:"is_valid"`
	Reason     string `json:"reason"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Accept returns a valid verdict.
func Accept(reason string) Verdict {
	return Verdict{Valid: true, Reason: reason}
}

// Reject returns an invalid verdict.
func Reject(reason, suggestion string) Verdict {
	return Verdict{Reason: reason, Suggestion: suggestion}
}

// SystemPrompt wraps handler-specific instructions in the shared assistant
// preamble.
func SystemPrompt(description, instructions string) string {
	return fmt.Sprintf("You are an expert AI assistant specializing in %s.\n\n%s\n\n"+
		"Always provide helpful, accurate, and safe responses. "+
		"If you're unsure about something, say so rather than guessing.", description, instructions)
}
