package service

import (
	"encoding/json"

	"github.com/slack-go/slack"
)

// Service types reported on results.
const (
	TypeDatabaseQuery  = "database_query"
	TypeCodeGeneration = "code_generation"
	TypeConversation   = "conversation"
)

// Result is the tagged union a handler returns. Exactly one payload is set
// for the handler that produced it; failures may still carry a payload with
// diagnostic fields (the offending SQL, an apology reply).
type Result struct {
	Service     string
	ServiceType string
	Success     bool
	Error       string
	Err         error

	SQL  *SQLPayload
	Code *CodePayload
	Chat *ChatPayload
}

// SQLPayload is produced by the nl2sql handler.
type SQLPayload struct {
	UserQuery      string           `json:"user_query"`
	SQLQuery       string           `json:"sql_query,omitempty"`
	Explanation    string           `json:"explanation,omitempty"`
	Results        []map[string]any `json:"results,omitempty"`
	RowCount       int              `json:"row_count"`
	FormattedTable string           `json:"formatted_table,omitempty"`
	CompactTable   string           `json:"compact_table,omitempty"`
	Blocks         []slack.Block    `json:"-"`
}

// CodePayload is produced by the code generation handler.
type CodePayload struct {
	UserRequest  string `json:"user_request"`
	Code         string `json:"code,omitempty"`
	Language     string `json:"language,omitempty"`
	Explanation  string `json:"explanation,omitempty"`
	UsageExample string `json:"usage_example,omitempty"`
}

// ChatPayload is produced by the conversation handler.
type ChatPayload struct {
	UserMessage string `json:"user_message"`
	Response    string `json:"response"`
	Tone        string `json:"tone,omitempty"`
}

// Failure builds an unsuccessful result from err.
func Failure(name, serviceType string, err error) *Result {
	return &Result{
		Service:     name,
		ServiceType: serviceType,
		Error:       err.Error(),
		Err:         err,
	}
}

// Fields flattens the result and its payload into one JSON object, the shape
// the HTTP API returns.
func (r *Result) Fields() map[string]any {
	out := map[string]any{
		"service":      r.Service,
		"service_type": r.ServiceType,
		"success":      r.Success,
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	var payload any
	switch {
	case r.SQL != nil:
		payload = r.SQL
	case r.Code != nil:
		payload = r.Code
	case r.Chat != nil:
		payload = r.Chat
	}
	if payload != nil {
		mergeJSON(out, payload)
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Fields())
}

func mergeJSON(dst map[string]any, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return
	}
	for k, val := range fields {
		if _, exists := dst[k]; !exists {
			dst[k] = val
		}
	}
}
