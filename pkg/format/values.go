// Package format renders query result rows for chat surfaces.
package format

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const noResults = "📊 No results found."

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// isCountResult reports whether rows is the single {count: N} row of an
// aggregate query.
func isCountResult(rows []map[string]any) (any, bool) {
	if len(rows) != 1 || len(rows[0]) != 1 {
		return nil, false
	}
	v, ok := rows[0]["count"]
	return v, ok
}

// stringify renders a scalar the way the chat surfaces show raw values.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return formatNumber(t)
	case float32:
		return formatNumber(float64(t))
	case time.Time:
		return t.Format(time.RFC3339)
	case map[string]any, []any:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	default:
		return fmt.Sprint(t)
	}
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// isZero mirrors the falsy check applied before special formatting.
func isZero(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case map[string]any:
		return len(t) == 0
	default:
		f, ok := toFloat(v)
		return ok && f == 0
	}
}

// formatTime renders an ISO timestamp with layout, or the first 16
// characters when the value is not an ISO timestamp.
func formatTime(v any, layout string) string {
	if t, ok := v.(time.Time); ok {
		return t.Format(layout)
	}
	s := stringify(v)
	if strings.Contains(s, "T") {
		normalized := strings.Replace(s, "Z", "+00:00", 1)
		for _, l := range isoLayouts {
			if t, err := time.Parse(l, normalized); err == nil {
				return t.Format(layout)
			}
		}
	}
	return truncate(s, 16)
}

// formatDuration renders seconds as "12.5s" or "2m 5.0s".
func formatDuration(v any) string {
	f, ok := toFloat(v)
	if !ok {
		return stringify(v)
	}
	if f < 60 {
		return fmt.Sprintf("%.1fs", f)
	}
	minutes := int(f / 60)
	seconds := math.Mod(f, 60)
	return fmt.Sprintf("%dm %.1fs", minutes, seconds)
}

// formatMetadata summarizes a metadata object as "12s | env:prod | err:...".
func formatMetadata(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return truncate(stringify(v), 25)
	}
	var parts []string
	if d, ok := m["duration"]; ok {
		parts = append(parts, stringify(d)+"s")
	}
	if env, ok := m["environment"]; ok {
		parts = append(parts, "env:"+stringify(env))
	}
	if e, ok := m["error"]; ok {
		parts = append(parts, "err:"+truncate(stringify(e), 20)+"...")
	}
	if len(parts) == 0 {
		return truncate(stringify(v), 25)
	}
	return strings.Join(parts, " | ")
}

func formatID(v any) string {
	s := stringify(v)
	if utf8.RuneCountInString(s) > 8 {
		return truncate(s, 8) + "..."
	}
	return s
}

// status maps the success column onto a glyph and label.
func status(v any) (string, string) {
	b, ok := v.(bool)
	switch {
	case ok && b:
		return "✅", "Passed"
	case ok && !b:
		return "❌", "Failed"
	default:
		return "🔹", "Unknown"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func padRight(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
