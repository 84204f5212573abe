package router

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidv1711/slack-bot/pkg/adapter"
	"github.com/sidv1711/slack-bot/pkg/chat"
	"github.com/sidv1711/slack-bot/pkg/codegen"
	"github.com/sidv1711/slack-bot/pkg/database"
	"github.com/sidv1711/slack-bot/pkg/service"
	"github.com/sidv1711/slack-bot/pkg/sqlgen"
)

type countingExecutor struct {
	mu    sync.Mutex
	calls int
}

func (e *countingExecutor) ExecuteSelect(ctx context.Context, sql string, args ...any) (*database.QueryResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return &database.QueryResult{Rows: []map[string]any{{"count": int64(3)}}, RowCount: 1}, nil
}

type countingRecorder struct {
	mu      sync.Mutex
	routes  []string
	results map[string]int
}

func (r *countingRecorder) RecordRoute(svc, method string, fallback bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, svc+"/"+method)
}

func (r *countingRecorder) RecordResult(svc string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = map[string]int{}
	}
	if success {
		r.results[svc]++
	}
}

type panickingService struct{}

func (panickingService) Name() string        { return "explosive" }
func (panickingService) Description() string { return "always panics" }
func (panickingService) Process(context.Context, string, service.RequestContext) *service.Result {
	panic("boom")
}
func (panickingService) Validate(string) service.Verdict   { return service.Accept("ok") }
func (panickingService) Capabilities() service.Capability { return service.Capability{Name: "explosive"} }
func (panickingService) Examples() []service.Example      { return nil }

func newTestDispatcher(t *testing.T, llm *adapter.MockAdapter, opts ...ClassifierOption) (*Dispatcher, *countingExecutor, *countingRecorder) {
	t.Helper()
	exec := &countingExecutor{}
	registry, err := NewRegistry(llm, chat.New(llm, nil), []service.Service{
		sqlgen.New(llm, exec),
		codegen.New(llm, nil),
	}, opts...)
	require.NoError(t, err)
	rec := &countingRecorder{}
	return NewDispatcher(registry, WithRecorder(rec)), exec, rec
}

func TestRouteEmptyInputMakesNoLLMCall(t *testing.T) {
	llm := adapter.NewMockAdapter()
	d, _, _ := newTestDispatcher(t, llm)

	for _, input := range []string{"", "   \n\t"} {
		resp := d.Route(context.Background(), input, nil, "")
		assert.False(t, resp.Success())
		assert.Contains(t, resp.Result.Error, "Empty input")
		assert.True(t, errors.Is(resp.Result.Err, service.ErrEmptyInput))
		assert.Equal(t, MethodRejected, resp.Routing.Method)
		assert.Equal(t, "Please provide a question or request", resp.Suggestion)
	}
	assert.Zero(t, llm.CallCount())
}

func TestRouteForcedUnknownServiceFallsBack(t *testing.T) {
	llm := adapter.NewMockAdapter().Enqueue("Happy to chat!")
	d, _, _ := newTestDispatcher(t, llm)

	resp := d.Route(context.Background(), "what's new?", nil, "nonexistent_service")
	require.True(t, resp.Success(), resp.Result.Error)
	assert.Equal(t, chat.Name, resp.Routing.Service)
	assert.Equal(t, MethodForced, resp.Routing.Method)
	assert.True(t, resp.Routing.Fallback)
	assert.Equal(t, 1.0, resp.Routing.Confidence)
	assert.Contains(t, resp.Routing.FallbackReason, "nonexistent_service")
	assert.Equal(t, "Happy to chat!", resp.Result.Chat.Response)
	assert.Equal(t, 1, llm.CallCount(), "forced routing skips the classifier")
}

func TestRouteClassifierErrorFallsBack(t *testing.T) {
	llm := adapter.NewMockAdapter().
		EnqueueError(errors.New("dial tcp 10.0.0.1:443: connection refused")).
		Enqueue("Hello!")
	d, _, _ := newTestDispatcher(t, llm)

	resp := d.Route(context.Background(), "Show me failed tests from yesterday", nil, "")
	require.True(t, resp.Success())
	assert.Equal(t, chat.Name, resp.Routing.Service)
	assert.Equal(t, 0.3, resp.Routing.Confidence)
	assert.True(t, resp.Routing.Fallback)
	assert.Equal(t, MethodClassified, resp.Routing.Method)
	assert.True(t, strings.HasPrefix(resp.Routing.Reasoning, "Classification error: "))
}

func TestRouteClassifierUnknownServiceFallsBack(t *testing.T) {
	llm := adapter.NewMockAdapter().
		Enqueue(`{"service":"bug_analysis","confidence":0.8,"reasoning":"error help"}`).
		Enqueue("Let me help.")
	d, _, _ := newTestDispatcher(t, llm)

	resp := d.Route(context.Background(), "What does this error mean?", nil, "")
	require.True(t, resp.Success())
	assert.Equal(t, chat.Name, resp.Routing.Service)
	assert.Equal(t, 0.5, resp.Routing.Confidence)
	assert.Equal(t, "Could not determine specific service", resp.Routing.Reasoning)
	assert.True(t, resp.Routing.Fallback)
}

func TestRouteClassifiedToCode(t *testing.T) {
	llm := adapter.NewMockAdapter().
		Enqueue(`{"service":"code_generation","confidence":0.9,"reasoning":"code request"}`).
		Enqueue(`{"code":"func Fib(n int) int { return n }","language":"go","explanation":"x","usage_example":"Fib(3)"}`)
	d, _, rec := newTestDispatcher(t, llm)

	rc := service.RequestContext{"language": "go", "timestamp": "2024-01-15T10:30:00Z"}
	resp := d.Route(context.Background(), "Write a function to calculate fibonacci numbers", rc, "")
	require.True(t, resp.Success(), resp.Result.Error)
	assert.Equal(t, codegen.Name, resp.Routing.Service)
	assert.Equal(t, 0.9, resp.Routing.Confidence)
	assert.False(t, resp.Routing.Fallback)
	assert.Equal(t, "go", resp.Result.Code.Language)
	assert.Equal(t, "2024-01-15T10:30:00Z", resp.Timestamp)
	assert.Equal(t, []string{"code_generation/classified"}, rec.routes)
	assert.Equal(t, 1, rec.results["code_generation"])
}

func TestRouteDropTableForcedToSQLFailsSafely(t *testing.T) {
	llm := adapter.NewMockAdapter().
		Enqueue(`{"sql":"DROP TABLE test_history;","explanation":"drops the table"}`)
	d, exec, _ := newTestDispatcher(t, llm)

	resp := d.Route(context.Background(), "DROP TABLE test_history;", nil, sqlgen.Name)
	assert.False(t, resp.Success())
	assert.Equal(t, sqlgen.Name, resp.Routing.Service)
	assert.False(t, resp.Routing.Fallback)
	assert.Contains(t, resp.Result.Error, "safety validation")
	assert.True(t, errors.Is(resp.Result.Err, service.ErrSafetyValidationFailed))
	assert.Zero(t, exec.calls)
	assert.Empty(t, resp.Result.SQL.Results)
}

func TestRouteValidationFailureFallsBack(t *testing.T) {
	llm := adapter.NewMockAdapter().Enqueue("Why did the test cross the road?")
	d, exec, _ := newTestDispatcher(t, llm)

	resp := d.Route(context.Background(), "tell me a joke", nil, sqlgen.Name)
	require.True(t, resp.Success())
	assert.Equal(t, chat.Name, resp.Routing.Service)
	assert.True(t, resp.Routing.Fallback)
	assert.Equal(t, "Query appears to be about 'joke', not database operations", resp.Routing.ValidationError)
	assert.Zero(t, exec.calls)
}

func TestRouteRecoversFromPanics(t *testing.T) {
	llm := adapter.NewMockAdapter()
	d, _, _ := newTestDispatcher(t, llm)
	require.NoError(t, d.Registry().Add(panickingService{}))

	resp := d.Route(context.Background(), "anything", service.RequestContext{"timestamp": 42}, "explosive")
	assert.False(t, resp.Success())
	assert.Equal(t, "error", resp.Result.Service)
	assert.Equal(t, "AI routing error: boom", resp.Result.Error)
	assert.Equal(t, MethodErrorFallback, resp.Routing.Method)
	assert.Equal(t, "boom", resp.Routing.Error)
	assert.Equal(t, 42, resp.Timestamp)
}

func TestResponseJSONShape(t *testing.T) {
	llm := adapter.NewMockAdapter().
		Enqueue(`{"sql":"SELECT COUNT(*) FROM test_history WHERE success = false;","explanation":"x"}`).
		Enqueue("Counts failed runs.")
	d, _, _ := newTestDispatcher(t, llm)

	resp := d.Route(context.Background(), "how many tests failed", nil, sqlgen.Name)
	require.True(t, resp.Success(), resp.Result.Error)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "nl2sql", body["service"])
	assert.Equal(t, "database_query", body["service_type"])
	assert.Equal(t, "📊 **Result:** 3", body["formatted_table"])
	routing := body["routing"].(map[string]any)
	assert.Equal(t, "nl2sql", routing["service"])
	assert.Equal(t, "forced", routing["method"])
	assert.Contains(t, body, "timestamp")
	assert.NotContains(t, body, "blocks")
}

func TestListCapabilitiesIsIdempotent(t *testing.T) {
	d, _, _ := newTestDispatcher(t, adapter.NewMockAdapter())
	first := d.ListCapabilities()
	second := d.ListCapabilities()
	assert.Equal(t, first, second)
	assert.Len(t, first, 3)
	assert.Contains(t, first, chat.Name)
}

func TestValidateAndExamples(t *testing.T) {
	d, _, _ := newTestDispatcher(t, adapter.NewMockAdapter())

	v := d.Validate("anything", "missing")
	assert.False(t, v.Valid)
	assert.Equal(t, "Service 'missing' does not exist", v.Reason)
	assert.Contains(t, v.Suggestion, "code_generation, general_chat, nl2sql")

	v = d.Validate("Write a function", codegen.Name)
	assert.True(t, v.Valid)

	all, err := d.Examples("")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	one, err := d.Examples(chat.Name)
	require.NoError(t, err)
	assert.Len(t, one[chat.Name], 5)

	_, err = d.Examples("missing")
	assert.True(t, errors.Is(err, service.ErrUnknownCapability))

	stats := d.Stats()
	assert.Equal(t, 3, stats.TotalServices)
	assert.Equal(t, "general_chat", stats.Fallback)
}

func TestRegistryCopyOnWrite(t *testing.T) {
	llm := adapter.NewMockAdapter()
	registry, err := NewRegistry(llm, chat.New(llm, nil), nil)
	require.NoError(t, err)

	before := registry.Classifier()
	assert.NotContains(t, before.Prompt(), "- nl2sql:")

	require.NoError(t, registry.Add(sqlgen.New(llm, nil)))
	after := registry.Classifier()
	assert.NotSame(t, before, after)
	assert.Contains(t, after.Prompt(), "- nl2sql: converting natural language to SQL")
	assert.NotContains(t, before.Prompt(), "- nl2sql:", "old classifier must be untouched")

	assert.Error(t, registry.Remove(chat.Name))
	assert.True(t, errors.Is(registry.Remove("missing"), service.ErrUnknownCapability))
	require.NoError(t, registry.Remove(sqlgen.Name))
	assert.Equal(t, []string{chat.Name}, registry.Names())

	assert.Error(t, registry.Add(nil))
	_, err = NewRegistry(llm, nil, nil)
	assert.Error(t, err)
	_, err = NewRegistry(llm, chat.New(llm, nil), []service.Service{chat.New(llm, nil)})
	assert.Error(t, err)
}

func TestClassifierPromptOnlyShowsRegisteredExamples(t *testing.T) {
	llm := adapter.NewMockAdapter()
	registry, err := NewRegistry(llm, chat.New(llm, nil), nil)
	require.NoError(t, err)

	prompt := registry.Classifier().Prompt()
	assert.Contains(t, prompt, `"service": "general_chat"`)
	assert.NotContains(t, prompt, "Show me failed tests from yesterday")
	assert.NotContains(t, prompt, "bug_analysis")

	require.NoError(t, registry.Add(sqlgen.New(llm, nil)))
	require.NoError(t, registry.Add(codegen.New(llm, nil)))
	prompt = registry.Classifier().Prompt()
	assert.Contains(t, prompt, `"service": "nl2sql"`)
	assert.Contains(t, prompt, `"service": "code_generation"`)
	assert.NotContains(t, prompt, "bug_analysis")

	prompt = buildClassifierPrompt(map[string]string{"release_notes": "drafting release notes"})
	assert.Contains(t, prompt, "- release_notes: drafting release notes")
	assert.NotContains(t, prompt, "EXAMPLES:")
}

func TestRegistryConcurrentReadsAndWrites(t *testing.T) {
	llm := adapter.NewMockAdapter()
	d, _, _ := newTestDispatcher(t, llm)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				resp := d.Route(context.Background(), "hello there", nil, "")
				assert.NotNil(t, resp)
				assert.Contains(t, d.registry.Names(), chat.Name)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 20; j++ {
			_ = d.Registry().Add(codegen.New(llm, nil))
			_ = d.Registry().Remove(codegen.Name)
		}
	}()
	wg.Wait()
}

func TestClassifierDefaultsAndCache(t *testing.T) {
	llm := adapter.NewMockAdapter().
		Enqueue(`{"service":"nl2sql"}`).
		Enqueue(`{"service":"nl2sql","confidence":1.7,"reasoning":"db"}`)
	c := NewClassifier(llm, map[string]string{"nl2sql": "db", "general_chat": "chat"}, "general_chat", WithCache(8))

	d := c.Classify(context.Background(), "failed tests")
	assert.Equal(t, "nl2sql", d.Service)
	assert.Equal(t, 0.8, d.Confidence)
	assert.Equal(t, "AI classification", d.Reasoning)
	assert.False(t, d.Fallback)

	cached := c.Classify(context.Background(), "  Failed   TESTS ")
	assert.True(t, cached.Cached)
	assert.Equal(t, 1, llm.CallCount())

	d = c.Classify(context.Background(), "passed tests")
	assert.Equal(t, 1.0, d.Confidence)

	call := llm.Calls()[0]
	assert.True(t, call.JSON)
	assert.Equal(t, 0.1, call.Temperature)
	assert.Equal(t, 200, call.MaxTokens)
}

func TestClassifierRejectsMalformedReplies(t *testing.T) {
	for name, reply := range map[string]string{
		"not json":    "nl2sql",
		"extra field": `{"service":"nl2sql","confidence":0.9,"reasoning":"x","alt":"chat"}`,
	} {
		t.Run(name, func(t *testing.T) {
			llm := adapter.NewMockAdapter().Enqueue(reply)
			c := NewClassifier(llm, map[string]string{"nl2sql": "db", "general_chat": "chat"}, "general_chat")
			d := c.Classify(context.Background(), "failed tests")
			assert.Equal(t, "general_chat", d.Service)
			assert.Equal(t, 0.3, d.Confidence)
			assert.True(t, d.Fallback)
		})
	}

	llm := adapter.NewMockAdapter().Enqueue(`{"confidence":0.9}`)
	c := NewClassifier(llm, map[string]string{"general_chat": "chat"}, "general_chat")
	d := c.Classify(context.Background(), "x")
	assert.Equal(t, 0.5, d.Confidence)
}
