package adapter

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type mockRule struct {
	contains string
	content  string
	err      error
}

// MockAdapter returns deterministic responses for local runs and tests.
// Queued replies are served first; otherwise the first rule whose substring
// appears anywhere in the transcript wins.
type MockAdapter struct {
	mu              sync.Mutex
	rules           []mockRule
	queue           []mockRule
	defaultResponse string
	calls           []CompletionRequest
	Usage           *Usage
}

// NewMockAdapter creates a mock adapter with a default response.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{defaultResponse: "mock response"}
}

// NewMockAdapterWithResponses creates a mock adapter with predefined responses.
// Longer keys are matched first.
func NewMockAdapterWithResponses(responses map[string]string, defaultResponse string) *MockAdapter {
	if defaultResponse == "" {
		defaultResponse = "mock response"
	}
	a := &MockAdapter{defaultResponse: defaultResponse}
	keys := make([]string, 0, len(responses))
	for k := range responses {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) == len(keys[j]) {
			return keys[i] < keys[j]
		}
		return len(keys[i]) > len(keys[j])
	})
	for _, k := range keys {
		a.rules = append(a.rules, mockRule{contains: k, content: responses[k]})
	}
	return a
}

// On replies with content when the transcript contains substr.
func (a *MockAdapter) On(substr, content string) *MockAdapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules = append(a.rules, mockRule{contains: substr, content: content})
	return a
}

// OnError fails the call when the transcript contains substr.
func (a *MockAdapter) OnError(substr string, err error) *MockAdapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules = append(a.rules, mockRule{contains: substr, err: err})
	return a
}

// Enqueue serves content to the next unmatched call, in order.
func (a *MockAdapter) Enqueue(content string) *MockAdapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queue = append(a.queue, mockRule{content: content})
	return a
}

// EnqueueError fails the next call with err.
func (a *MockAdapter) EnqueueError(err error) *MockAdapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queue = append(a.queue, mockRule{err: err})
	return a
}

// Calls returns a copy of every request received so far.
func (a *MockAdapter) Calls() []CompletionRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]CompletionRequest, len(a.calls))
	copy(out, a.calls)
	return out
}

// CallCount returns the number of requests received.
func (a *MockAdapter) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

// Name returns the adapter identifier.
func (a *MockAdapter) Name() string {
	return "mock"
}

// Models returns the list of supported mock models.
func (a *MockAdapter) Models() []string {
	return []string{"mock-1"}
}

// Complete returns a scripted reply for the transcript.
func (a *MockAdapter) Complete(ctx context.Context, req *CompletionRequest) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	reqCopy := *req
	reqCopy.Messages = append([]Message(nil), req.Messages...)
	a.calls = append(a.calls, reqCopy)

	model := req.Model
	if model == "" {
		model = "mock-1"
	}

	reply, ok := a.match(req.Messages)
	if !ok {
		reply = mockRule{content: a.defaultResponse}
	}
	if reply.err != nil {
		return nil, reply.err
	}
	return &Response{Content: reply.content, Adapter: a.Name(), Model: model, Usage: a.Usage}, nil
}

func (a *MockAdapter) match(messages []Message) (mockRule, bool) {
	if len(a.queue) > 0 {
		next := a.queue[0]
		a.queue = a.queue[1:]
		return next, true
	}
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(m.Content)
		sb.WriteByte('\n')
	}
	transcript := sb.String()
	for _, rule := range a.rules {
		if strings.Contains(transcript, rule.contains) {
			return rule, true
		}
	}
	return mockRule{}, false
}
