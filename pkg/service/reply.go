package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DecodeReply parses a structured LLM reply into v. Code fences are stripped;
// unknown fields and trailing data are rejected.
func DecodeReply(content string, v any) error {
	content = StripFences(content)
	if content == "" {
		return fmt.Errorf("%w: empty reply", ErrInvalidLLMOutput)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(content)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLLMOutput, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after JSON object", ErrInvalidLLMOutput)
	}
	return nil
}

// StripFences removes a surrounding markdown code fence, if present.
func StripFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
