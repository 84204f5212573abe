package codegen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidv1711/slack-bot/pkg/adapter"
	"github.com/sidv1711/slack-bot/pkg/service"
)

const fibonacci = "Write a function to calculate fibonacci numbers"

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name  string
		input string
		rc    service.RequestContext
		want  string
	}{
		{"context override", fibonacci, service.RequestContext{"language": "rust"}, "rust"},
		{"preferred language", fibonacci, service.RequestContext{"preferred_language": "java"}, "java"},
		{"override beats keyword", "write a python script", service.RequestContext{"language": "go"}, "go"},
		{"blank override ignored", "write a golang server", service.RequestContext{"language": "  "}, "go"},
		{"keyword", "Create a React component for a login form", nil, "javascript"},
		{"table order", "port this java code to typescript", nil, "java"},
		{"cpp", "implement a linked list in c++", nil, "cpp"},
		{"csharp", "write a c# class", nil, "csharp"},
		{"sql", "write a query to find duplicates", nil, "sql"},
		{"default", fibonacci, nil, "python"},
		{"algorithm is not go", "implement a sorting algorithm", nil, "python"},
		{"happy is not py", "write a happy birthday script", nil, "python"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.input, tt.rc))
		})
	}
}

func TestProcessFibonacciLanguageRoundTrip(t *testing.T) {
	reply := `{"code":"def fibonacci(n):\n    return n","language":"python","explanation":"recursive","usage_example":"fibonacci(10)"}`

	for _, tt := range []struct {
		rc   service.RequestContext
		want string
	}{
		{service.RequestContext{"language": "go"}, "go"},
		{nil, "python"},
	} {
		llm := adapter.NewMockAdapter().Enqueue(reply)
		r := New(llm, nil).Process(context.Background(), fibonacci, tt.rc)
		require.True(t, r.Success, r.Error)
		assert.Equal(t, tt.want, r.Code.Language)
		assert.Equal(t, "def fibonacci(n):\n    return n", r.Code.Code)
		assert.Equal(t, "fibonacci(10)", r.Code.UsageExample)
		assert.Equal(t, fibonacci, r.Code.UserRequest)

		call := llm.Calls()[0]
		assert.True(t, call.JSON)
		assert.Equal(t, 0.2, call.Temperature)
		assert.Equal(t, 1000, call.MaxTokens)
		assert.Contains(t, call.Messages[0].Content, "You are an expert "+tt.want+" programmer.")
		assert.Contains(t, call.Messages[0].Content, "specializing in generating code from natural language descriptions")
	}
}

func TestProcessFailures(t *testing.T) {
	tests := map[string]struct {
		llm  *adapter.MockAdapter
		want error
	}{
		"llm error":     {adapter.NewMockAdapter().EnqueueError(errors.New("503")), service.ErrLLMUnavailable},
		"not json":      {adapter.NewMockAdapter().Enqueue("def f(): pass"), service.ErrInvalidLLMOutput},
		"empty code":    {adapter.NewMockAdapter().Enqueue(`{"code":"","language":"python","explanation":"","usage_example":""}`), service.ErrInvalidLLMOutput},
		"unknown field": {adapter.NewMockAdapter().Enqueue(`{"code":"x","tests":"y"}`), service.ErrInvalidLLMOutput},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			r := New(tt.llm, nil).Process(context.Background(), fibonacci, nil)
			assert.False(t, r.Success)
			assert.True(t, errors.Is(r.Err, tt.want), r.Error)
			require.NotNil(t, r.Code)
			assert.Equal(t, "python", r.Code.Language)
		})
	}

	llm := adapter.NewMockAdapter()
	r := New(llm, nil).Process(context.Background(), "", nil)
	assert.True(t, errors.Is(r.Err, service.ErrEmptyInput))
	assert.Zero(t, llm.CallCount())
}

func TestValidate(t *testing.T) {
	h := New(adapter.NewMockAdapter(), nil)

	v := h.Validate(" ")
	assert.False(t, v.Valid)
	assert.Equal(t, "Please describe what code you want me to generate", v.Suggestion)

	v = h.Validate("what is the capital of France")
	assert.False(t, v.Valid)
	assert.Equal(t, "Request doesn't appear to be asking for code generation", v.Reason)

	v = h.Validate(fibonacci)
	assert.True(t, v.Valid)
	assert.Equal(t, "Request is suitable for code generation", v.Reason)
}

func TestCapabilities(t *testing.T) {
	h := New(adapter.NewMockAdapter(), nil)
	assert.Equal(t, Name, h.Name())
	assert.Len(t, h.Examples(), 4)
	assert.Equal(t, h.Capabilities(), h.Capabilities())
}
