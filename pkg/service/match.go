package service

import (
	"errors"
	"fmt"
	"strings"
)

// ContainsWord reports whether word occurs in text delimited by non-word
// characters on both sides. Every occurrence is checked, so "EXEC" is found
// in "execution_time EXEC" but not in "execution_time" alone. Matching is
// case-sensitive; callers normalize case.
func ContainsWord(text, word string) bool {
	if word == "" {
		return false
	}
	offset := 0
	for {
		idx := strings.Index(text[offset:], word)
		if idx == -1 {
			return false
		}
		start := offset + idx
		end := start + len(word)

		before := start == 0 || !isWordChar(text[start-1])
		after := end == len(text) || !isWordChar(text[end])
		if before && after {
			return true
		}
		offset = start + 1
	}
}

// FirstWord returns the first of words found in text as a whole word.
func FirstWord(text string, words []string) (string, bool) {
	for _, w := range words {
		if ContainsWord(text, w) {
			return w, true
		}
	}
	return "", false
}

// FirstSubstring returns the first of words found anywhere in text.
func FirstSubstring(text string, words []string) (string, bool) {
	for _, w := range words {
		if strings.Contains(text, w) {
			return w, true
		}
	}
	return "", false
}

func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}

// LLMError maps an adapter failure onto ErrLLMUnavailable unless it is
// already classified.
func LLMError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrLLMUnavailable) || errors.Is(err, ErrInvalidLLMOutput) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
}
