package format

import (
	"fmt"
	"strings"
)

// DefaultCompactRows is the row cap for the compact list.
const DefaultCompactRows = 15

// Compact renders rows as a short per-row list suited to narrow screens.
func Compact(rows []map[string]any, maxRows int) string {
	if len(rows) == 0 {
		return noResults
	}
	if count, ok := isCountResult(rows); ok {
		return fmt.Sprintf("📊 **Answer:** %s", stringify(count))
	}
	if maxRows <= 0 {
		maxRows = DefaultCompactRows
	}

	limited := rows
	if len(rows) > maxRows {
		limited = rows[:maxRows]
	}

	var lines []string
	for i, row := range limited {
		testID := fmt.Sprintf("Row %d", i+1)
		if v, ok := row["test_uid"]; ok {
			testID = stringify(v)
		}
		glyph, label := status(row["success"])
		lines = append(lines, fmt.Sprintf("%s **%s** - %s", glyph, testID, label))

		if v, ok := row["execution_time"]; ok {
			lines = append(lines, "   🕐 "+formatTime(v, "01/02 15:04"))
		}

		if meta, ok := row["metadata"].(map[string]any); ok && len(meta) > 0 {
			var details []string
			if d, ok := meta["duration"]; ok {
				details = append(details, "⏱️"+stringify(d)+"s")
			}
			if env, ok := meta["environment"]; ok {
				details = append(details, "🌍"+stringify(env))
			}
			if len(details) > 0 {
				lines = append(lines, "   "+strings.Join(details, " "))
			}
		}

		lines = append(lines, "")
	}
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	out := strings.Join(lines, "\n")
	if len(rows) > maxRows {
		out += fmt.Sprintf("\n\n📄 _Showing %d of %d results_", maxRows, len(rows))
	}
	return out
}
