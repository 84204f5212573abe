package router

import (
	"context"
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/sidv1711/slack-bot/pkg/adapter"
	"github.com/sidv1711/slack-bot/pkg/service"
)

const classifierDescription = "routing user queries to appropriate AI services"

// Classifier asks the model which registered capability should handle an
// input. It is built from a fixed set of capability descriptions and must be
// replaced whenever that set changes.
type Classifier struct {
	llm      adapter.Adapter
	services map[string]string
	fallback string
	prompt   string
	cache    *lru.Cache[string, Decision]
	logger   *zap.Logger
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithCache keeps up to size successful decisions keyed by normalized input.
func WithCache(size int) ClassifierOption {
	return func(c *Classifier) {
		if size <= 0 {
			c.cache = nil
			return
		}
		cache, err := lru.New[string, Decision](size)
		if err == nil {
			c.cache = cache
		}
	}
}

// WithClassifierLogger sets the classifier logger.
func WithClassifierLogger(logger *zap.Logger) ClassifierOption {
	return func(c *Classifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClassifier builds a classifier over services (name to description).
// fallback is returned whenever the model cannot pick a registered service.
func NewClassifier(llm adapter.Adapter, services map[string]string, fallback string, opts ...ClassifierOption) *Classifier {
	snapshot := make(map[string]string, len(services))
	for name, desc := range services {
		snapshot[name] = desc
	}
	c := &Classifier{
		llm:      llm,
		services: snapshot,
		fallback: fallback,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.prompt = buildClassifierPrompt(snapshot)
	return c
}

// Prompt returns the system prompt sent with every classification.
func (c *Classifier) Prompt() string {
	return c.prompt
}

// Classify picks a capability for input. It never fails: call and parse
// errors yield the fallback at confidence 0.3, unknown names at 0.5.
func (c *Classifier) Classify(ctx context.Context, input string) Decision {
	key := cacheKey(input)
	if c.cache != nil {
		if d, ok := c.cache.Get(key); ok {
			d.Cached = true
			return d
		}
	}

	resp, err := c.llm.Complete(ctx, &adapter.CompletionRequest{
		Messages: []adapter.Message{
			{Role: adapter.RoleSystem, Content: c.prompt},
			{Role: adapter.RoleUser, Content: input},
		},
		Temperature: 0.1,
		MaxTokens:   200,
		JSON:        true,
	})
	if err != nil {
		return c.failed(service.LLMError(err))
	}

	pick, err := parseClassifierResponse(resp.Content)
	if err != nil {
		return c.failed(err)
	}

	if _, ok := c.services[pick.Service]; !ok {
		c.logger.Info("classifier picked unknown service", zap.String("service", pick.Service))
		return Decision{
			Service:        c.fallback,
			Confidence:     0.5,
			Reasoning:      "Could not determine specific service",
			Fallback:       true,
			FallbackReason: fmt.Sprintf("classifier returned unknown service %q", pick.Service),
		}
	}

	d := Decision{
		Service:    pick.Service,
		Confidence: 0.8,
		Reasoning:  "AI classification",
	}
	if pick.Confidence != nil {
		d.Confidence = clamp(*pick.Confidence)
	}
	if r := strings.TrimSpace(pick.Reasoning); r != "" {
		d.Reasoning = r
	}
	if c.cache != nil {
		c.cache.Add(key, d)
	}
	return d
}

func (c *Classifier) failed(err error) Decision {
	c.logger.Warn("intent classification failed", zap.Error(err))
	return Decision{
		Service:        c.fallback,
		Confidence:     0.3,
		Reasoning:      "Classification error: " + err.Error(),
		Fallback:       true,
		FallbackReason: "classification error",
	}
}

type classifierPick struct {
	Service    string   `json:"service"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

func parseClassifierResponse(content string) (*classifierPick, error) {
	var pick classifierPick
	if err := service.DecodeReply(content, &pick); err != nil {
		return nil, err
	}
	pick.Service = strings.TrimSpace(pick.Service)
	return &pick, nil
}

// classifierExamples are shown to the model only for services that are
// registered.
var classifierExamples = []struct {
	service    string
	input      string
	confidence string
	reasoning  string
}{
	{"nl2sql", "Show me failed tests from yesterday", "0.95", "User is asking for database query about test execution history"},
	{"code_generation", "Write a Python function to calculate fibonacci", "0.90", "User is requesting code generation for a specific algorithm"},
	{"general_chat", "Hello, how are you?", "0.85", "User is engaging in general conversation"},
}

func buildClassifierPrompt(services map[string]string) string {
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", name, services[name]))
	}

	var examples strings.Builder
	for _, ex := range classifierExamples {
		if _, ok := services[ex.service]; !ok {
			continue
		}
		examples.WriteString(fmt.Sprintf(`

User: %q
Response: {
    "service": %q,
    "confidence": %s,
    "reasoning": %q
}`, ex.input, ex.service, ex.confidence, ex.reasoning))
	}

	prompt := `You are an intent classification system. Analyze user queries and determine which service should handle them.

AVAILABLE SERVICES:
` + strings.TrimSuffix(sb.String(), "\n") + `

CLASSIFICATION RULES:
1. Analyze the user's query carefully
2. Determine which service is most appropriate
3. Provide a confidence score (0.0 to 1.0)
4. Explain your reasoning

RESPONSE FORMAT:
Return a JSON object with this exact structure:
{
    "service": "service_name",
    "confidence": 0.85,
    "reasoning": "Brief explanation of why this service was chosen"
}`
	if examples.Len() > 0 {
		prompt += "\n\nEXAMPLES:" + examples.String()
	}
	return service.SystemPrompt(classifierDescription, prompt)
}

func cacheKey(input string) string {
	return strings.ToLower(strings.Join(strings.Fields(input), " "))
}

func clamp(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
