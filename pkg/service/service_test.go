package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidv1711/slack-bot/pkg/adapter"
)

func TestDecodeReply(t *testing.T) {
	type reply struct {
		SQL         string `json:"sql"`
		Explanation string `json:"explanation"`
	}

	var r reply
	require.NoError(t, DecodeReply("```json\n{\"sql\":\"SELECT 1\",\"explanation\":\"x\"}\n```", &r))
	assert.Equal(t, "SELECT 1", r.SQL)

	tests := map[string]string{
		"empty":         "",
		"not json":      "SELECT * FROM test_history",
		"unknown field": `{"sql":"SELECT 1","rows":[]}`,
		"trailing":      `{"sql":"SELECT 1"} {"sql":"DROP"}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			var r reply
			err := DecodeReply(content, &r)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidLLMOutput))
		})
	}
}

func TestRequestContextHistory(t *testing.T) {
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"conversation_history": [
			{"role": "user", "content": "hi"},
			{"role": "assistant", "content": "hello"},
			{"role": "tool", "content": "ignored"},
			"garbage"
		]
	}`), &decoded))

	history := RequestContext(decoded).History()
	require.Len(t, history, 2)
	assert.Equal(t, adapter.Message{Role: "user", Content: "hi"}, history[0])
	assert.Equal(t, adapter.Message{Role: "assistant", Content: "hello"}, history[1])

	assert.Nil(t, RequestContext(nil).History())
}

func TestRequestContextString(t *testing.T) {
	rc := RequestContext{KeyLanguage: "  go ", KeyUserName: "", "n": 3}
	v, ok := rc.String(KeyLanguage)
	assert.True(t, ok)
	assert.Equal(t, "go", v)

	_, ok = rc.String(KeyUserName)
	assert.False(t, ok)
	_, ok = rc.String("n")
	assert.False(t, ok)
}

func TestResultFieldsFlattenPayload(t *testing.T) {
	r := &Result{
		Service:     "nl2sql",
		ServiceType: TypeDatabaseQuery,
		Success:     false,
		Error:       "Database error: boom",
		SQL:         &SQLPayload{UserQuery: "q", SQLQuery: "SELECT 1 FROM test_history;"},
	}

	raw, err := json.Marshal(r)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "nl2sql", fields["service"])
	assert.Equal(t, false, fields["success"])
	assert.Equal(t, "SELECT 1 FROM test_history;", fields["sql_query"])
	assert.Equal(t, "Database error: boom", fields["error"])
}

func TestSystemPrompt(t *testing.T) {
	p := SystemPrompt("testing", "Do the thing.")
	assert.Contains(t, p, "specializing in testing.")
	assert.Contains(t, p, "Do the thing.")
	assert.Contains(t, p, "say so rather than guessing.")
}

func TestContainsWord(t *testing.T) {
	tests := []struct {
		text string
		word string
		want bool
	}{
		{"SELECT EXECUTION_TIME FROM T", "EXEC", false},
		{"SELECT EXECUTION_TIME FROM T; EXEC X", "EXEC", true},
		{"DROP TABLE TEST_HISTORY", "DROP", true},
		{"BACKDROP", "DROP", false},
		{"show test_history", "hi", false},
		{"hi there", "hi", true},
		{"oh, hi!", "hi", true},
		{"", "x", false},
		{"abc", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ContainsWord(tt.text, tt.word), "%q in %q", tt.word, tt.text)
	}

	w, ok := FirstWord("tell me a joke", []string{"weather", "joke"})
	assert.True(t, ok)
	assert.Equal(t, "joke", w)

	w, ok = FirstSubstring("this is illegally parked", []string{"illegal"})
	assert.True(t, ok)
	assert.Equal(t, "illegal", w)
}

func TestLLMError(t *testing.T) {
	assert.Nil(t, LLMError(nil))

	err := LLMError(errors.New("dial tcp: refused"))
	assert.True(t, errors.Is(err, ErrLLMUnavailable))
	assert.Contains(t, err.Error(), "dial tcp: refused")

	invalid := fmt.Errorf("%w: bad json", ErrInvalidLLMOutput)
	assert.Equal(t, invalid, LLMError(invalid))
}
