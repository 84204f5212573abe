// Package codegen generates source code from natural language requests.
package codegen

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
const Name = "code_generation"

// DefaultLanguage is used when neither context nor input names a language.
const DefaultLanguage = "python"

const description = "generating code from natural language descriptions"

type languageKeywords struct {
	language string
	keywords []string
}

// Checked in order; the first language with a matching keyword wins.
var languageTable = []languageKeywords{
	{"python", []string{"python", "py", "django", "flask", "pandas"}},
	{"javascript", []string{"javascript", "js", "node", "react", "vue", "angular"}},
	{"java", []string{"java", "spring", "maven"}},
	{"typescript", []string{"typescript", "ts"}},
	{"go", []string{"go", "golang"}},
	{"rust", []string{"rust"}},
	{"cpp", []string{"c++", "cpp"}},
	{"csharp", []string{"c#", "csharp", ".net"}},
	{"sql", []string{"sql", "database", "query"}},
}

var codeKeywords = []string{
	"write", "create", "generate", "code", "function", "class",
	"script", "program", "algorithm", "implement", "build",
}

// Handler implements service.Service for code generation.
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

// DetectLanguage picks the target language. An explicit language in rc wins,
// then the first keyword found in input as a whole word, then
// DefaultLanguage.
func DetectLanguage(input string, rc service.RequestContext) string {
	if lang, ok := rc.String(service.KeyLanguage); ok {
		return lang
	}
	if lang, ok := rc.String(service.KeyPreferredLanguage); ok {
		return lang
	}
	lower := strings.ToLower(input)
	for _, entry := range languageTable {
		if _, found := service.FirstWord(lower, entry.keywords); found {
			return entry.language
		}
	}
	return DefaultLanguage
}

func buildPrompt(language string) string {
	return service.SystemPrompt(description, fmt.Sprintf(`You are an expert %[1]s programmer. Generate clean, efficient, and well-documented code based on user requests.

GUIDELINES:
1. Write production-ready code with proper error handling
2. Include helpful comments explaining complex logic
3. Follow language-specific best practices and conventions
4. Provide usage examples when appropriate
5. Focus on readability and maintainability

RESPONSE FORMAT:
Return a JSON object with this structure:
{
    "code": "// The actual code here",
    "language": "%[1]s",
    "explanation": "Clear explanation of what the code does and how it works",
    "usage_example": "Example of how to use the code"
}

EXAMPLE:
User: "Write a function to calculate fibonacci numbers"
Response: {
    "code": "def fibonacci(n):\n    if n <= 1:\n        return n\n    return fibonacci(n-1) + fibonacci(n-2)",
    "language": "python",
    "explanation": "Recursive function that calculates the nth Fibonacci number using the mathematical definition",
    "usage_example": "print(fibonacci(10))  # Output: 55"
}`, language))
}

type codeReply struct {
	Code         string `json:"code"`
	Language     string `json:"language"`
	Explanation  string `json:"explanation"`
	UsageExample string `json:"usage_example"`
}

// Process implements service.Service. The reported language is always the
// detected one, whatever the model claims.
func (h *Handler) Process(ctx context.Context, input string, rc service.RequestContext) *service.Result {
	input = strings.TrimSpace(input)
	payload := &service.CodePayload{UserRequest: input}
	if input == "" {
		return service.Failure(Name, service.TypeCodeGeneration, service.ErrEmptyInput)
	}

	language := DetectLanguage(input, rc)
	payload.Language = language

	resp, err := h.llm.Complete(ctx, &adapter.CompletionRequest{
		Messages: []adapter.Message{
			{Role: adapter.RoleSystem, Content: buildPrompt(language)},
			{Role: adapter.RoleUser, Content: input},
		},
		Temperature: 0.2,
		MaxTokens:   1000,
		JSON:        true,
	})
	if err != nil {
		return h.fail(payload, service.LLMError(err))
	}

	var reply codeReply
	if err := service.DecodeReply(resp.Content, &reply); err != nil {
		return h.fail(payload, err)
	}
	if strings.TrimSpace(reply.Code) == "" {
		return h.fail(payload, fmt.Errorf("%w: reply contains no code", service.ErrInvalidLLMOutput))
	}
	if reply.Language != "" && !strings.EqualFold(reply.Language, language) {
		h.logger.Debug("model answered in a different language",
			zap.String("requested", language), zap.String("reply", reply.Language))
	}

	payload.Code = reply.Code
	payload.Explanation = reply.Explanation
	payload.UsageExample = reply.UsageExample
	return &service.Result{
		Service:     Name,
		ServiceType: service.TypeCodeGeneration,
		Success:     true,
		Code:        payload,
	}
}

func (h *Handler) fail(payload *service.CodePayload, err error) *service.Result {
	h.logger.Warn("code generation failed", zap.String("language", payload.Language), zap.Error(err))
	r := service.Failure(Name, service.TypeCodeGeneration, err)
	r.Code = payload
	return r
}

// Validate implements service.Service.
func (h *Handler) Validate(input string) service.Verdict {
	if strings.TrimSpace(input) == "" {
		return service.Reject("Empty request cannot generate code",
			"Please describe what code you want me to generate")
	}
	if _, found := service.FirstSubstring(strings.ToLower(input), codeKeywords); !found {
		return service.Reject("Request doesn't appear to be asking for code generation",
			"Try phrases like 'write a function', 'create a class', or 'generate code'")
	}
	return service.Accept("Request is suitable for code generation")
}

// Capabilities implements service.Service.
func (h *Handler) Capabilities() service.Capability {
	return service.Capability{
		Name:        Name,
		Description: "Generate code from natural language descriptions in Python, JavaScript, TypeScript, Java, Go, Rust, C++, C# or SQL",
		Features: []string{
			"Function and class generation",
			"Algorithm implementation",
			"API client code",
			"Data processing scripts",
			"Test code generation",
			"Code documentation",
			"Usage examples",
		},
		Examples: h.Examples(),
	}
}

// Examples implements service.Service.
func (h *Handler) Examples() []service.Example {
	return []service.Example{
		{Input: "Write a Python function to sort a list of dictionaries by a key", Output: "Generates a sorting function with error handling"},
		{Input: "Create a JavaScript API client for REST endpoints", Output: "Generates a class with HTTP methods and error handling"},
		{Input: "Write a SQL query to find duplicate records", Output: "Generates SQL with proper grouping and having clauses"},
		{Input: "Generate a Python class for managing user sessions", Output: "Generates a session manager with authentication methods"},
	}
}
