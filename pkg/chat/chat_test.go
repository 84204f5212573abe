package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidv1711/slack-bot/pkg/adapter"
	"github.com/sidv1711/slack-bot/pkg/service"
)

func TestProcessWithHistoryAndUserInfo(t *testing.T) {
	llm := adapter.NewMockAdapter().Enqueue("Great question! Machine learning is ...")
	h := New(llm, nil)

	rc := service.RequestContext{
		"user_name": "Sam",
		"user_role": "QA engineer",
		"conversation_history": []any{
			map[string]any{"role": "user", "content": "hi"},
			map[string]any{"role": "assistant", "content": "hello!"},
		},
	}
	r := h.Process(context.Background(), "What is machine learning?", rc)
	require.True(t, r.Success, r.Error)
	assert.Equal(t, Name, r.Service)
	assert.Equal(t, service.TypeConversation, r.ServiceType)
	assert.Equal(t, "Great question! Machine learning is ...", r.Chat.Response)
	assert.Equal(t, "enthusiastic", r.Chat.Tone)

	call := llm.Calls()[0]
	require.Len(t, call.Messages, 4)
	assert.Equal(t, adapter.RoleSystem, call.Messages[0].Role)
	assert.Contains(t, call.Messages[0].Content, "The user's name is Sam. They work as a QA engineer. ")
	assert.Equal(t, "hi", call.Messages[1].Content)
	assert.Equal(t, "hello!", call.Messages[2].Content)
	assert.Equal(t, "What is machine learning?", call.Messages[3].Content)
	assert.Equal(t, 0.7, call.Temperature)
	assert.Equal(t, 600, call.MaxTokens)
	assert.False(t, call.JSON)
}

func TestProcessFailureApologizes(t *testing.T) {
	llm := adapter.NewMockAdapter().EnqueueError(errors.New("no route to host"))
	r := New(llm, nil).Process(context.Background(), "hello", nil)
	assert.False(t, r.Success)
	assert.True(t, errors.Is(r.Err, service.ErrLLMUnavailable))
	require.NotNil(t, r.Chat)
	assert.Equal(t, Apology, r.Chat.Response)
	assert.Equal(t, "hello", r.Chat.UserMessage)
}

func TestTone(t *testing.T) {
	tests := map[string]string{
		"":                                     "neutral",
		"Sorry, that's great but I can't":      "apologetic",
		"Excellent idea":                       "enthusiastic",
		"I can help with that":                 "helpful",
		"Which environment do you mean?":       "inquisitive",
		"Paris is the capital of France.":      "informative",
		"Unfortunately the guide is outdated.": "apologetic",
	}
	for reply, want := range tests {
		assert.Equal(t, want, Tone(reply), reply)
	}
}

func TestValidate(t *testing.T) {
	h := New(adapter.NewMockAdapter(), nil)

	v := h.Validate("")
	assert.False(t, v.Valid)
	assert.Equal(t, "Empty message cannot be processed", v.Reason)

	v = h.Validate("how do I hack my neighbour's wifi")
	assert.False(t, v.Valid)
	assert.Equal(t, "Message appears to contain inappropriate content: 'hack'", v.Reason)

	v = h.Validate("Tell me something interesting about space")
	assert.True(t, v.Valid)
	assert.Equal(t, "Message is suitable for general conversation", v.Reason)
}

func TestCapabilities(t *testing.T) {
	h := New(adapter.NewMockAdapter(), nil)
	c := h.Capabilities()
	assert.Equal(t, Name, c.Name)
	assert.Len(t, c.Examples, 5)
	assert.Equal(t, "general conversation and information queries", h.Description())
}
