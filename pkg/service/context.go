package service

import (
	"strings"

	"github.com/sidv1711/slack-bot/pkg/adapter"
)

// Keys the handlers read from a RequestContext. Everything else is passed
// through untouched.
const (
	KeyLanguage            = "language"
	KeyPreferredLanguage   = "preferred_language"
	KeyConversationHistory = "conversation_history"
	KeyUserName            = "user_name"
	KeyUserRole            = "user_role"
	KeyTimestamp           = "timestamp"
)

// RequestContext is the opaque key/value map supplied by the transport.
type RequestContext map[string]any

// String returns a trimmed, non-empty string value for key.
func (c RequestContext) String(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	s, ok := c[key].(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// Timestamp returns the caller-supplied timestamp, if any.
func (c RequestContext) Timestamp() any {
	if c == nil {
		return nil
	}
	return c[KeyTimestamp]
}

// History returns prior conversation turns. It accepts typed messages as well
// as the []any of maps produced by decoding JSON; malformed entries are skipped.
func (c RequestContext) History() []adapter.Message {
	if c == nil {
		return nil
	}
	switch v := c[KeyConversationHistory].(type) {
	case []adapter.Message:
		return v
	case []map[string]any:
		out := make([]adapter.Message, 0, len(v))
		for _, m := range v {
			if msg, ok := toMessage(m); ok {
				out = append(out, msg)
			}
		}
		return out
	case []any:
		out := make([]adapter.Message, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if msg, ok := toMessage(m); ok {
				out = append(out, msg)
			}
		}
		return out
	default:
		return nil
	}
}

func toMessage(m map[string]any) (adapter.Message, bool) {
	role, _ := m["role"].(string)
	content, _ := m["content"].(string)
	switch role {
	case adapter.RoleUser, adapter.RoleAssistant, adapter.RoleSystem:
	default:
		return adapter.Message{}, false
	}
	if content == "" {
		return adapter.Message{}, false
	}
	return adapter.Message{Role: role, Content: content}, true
}
