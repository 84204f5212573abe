package format

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultTableRows is the row cap for the verbose table.
const DefaultTableRows = 15

var (
	priorityColumns = []string{"test_uid", "success", "execution_time", "id", "metadata", "duration"}
	hiddenColumns   = map[string]bool{"created_at": true, "updated_at": true}
	headerNames     = map[string]string{
		"test_uid":       "Test ID",
		"execution_time": "Time",
		"success":        "Result",
	}
)

// Table renders rows as a box-drawn table inside a code fence, followed by a
// row count footer.
func Table(rows []map[string]any, maxRows int) string {
	if len(rows) == 0 {
		return noResults
	}
	if count, ok := isCountResult(rows); ok {
		return fmt.Sprintf("📊 **Result:** %s", stringify(count))
	}
	if maxRows <= 0 {
		maxRows = DefaultTableRows
	}

	limited := rows
	if len(rows) > maxRows {
		limited = rows[:maxRows]
	}
	truncated := len(rows) > maxRows

	columns := orderColumns(limited[0])

	cells := make([]map[string]string, 0, len(limited))
	for _, row := range limited {
		formatted := make(map[string]string, len(columns))
		for _, col := range columns {
			formatted[col] = formatCell(col, row[col])
		}
		cells = append(cells, formatted)
	}

	widths := make(map[string]int, len(columns))
	for _, col := range columns {
		w := utf8.RuneCountInString(col)
		for _, row := range cells {
			if n := utf8.RuneCountInString(row[col]); n > w {
				w = n
			}
		}
		widths[col] = min(max(w, 8), 25)
	}

	headerParts := make([]string, 0, len(columns))
	for _, col := range columns {
		headerParts = append(headerParts, padRight(displayName(col), widths[col]))
	}
	header := strings.Join(headerParts, " │ ")
	rule := strings.Repeat("─", utf8.RuneCountInString(header))

	var lines []string
	lines = append(lines, "┌"+rule+"┐")
	lines = append(lines, "│ "+header+" │")
	lines = append(lines, "├"+rule+"┤")
	for _, row := range cells {
		parts := make([]string, 0, len(columns))
		for _, col := range columns {
			parts = append(parts, truncate(padRight(row[col], widths[col]), widths[col]))
		}
		lines = append(lines, "│ "+strings.Join(parts, " │ ")+" │")
	}
	lines = append(lines, "└"+rule+"┘")

	footer := []string{fmt.Sprintf("📊 **%d rows displayed**", len(limited))}
	if truncated {
		footer = append(footer, fmt.Sprintf("📄 _(First %d of %d total results)_", maxRows, len(rows)))
	}

	return "```\n" + strings.Join(lines, "\n") + "\n```\n" + strings.Join(footer, " • ")
}

// orderColumns puts well-known columns first, then the rest alphabetically.
func orderColumns(row map[string]any) []string {
	var columns []string
	seen := make(map[string]bool)
	for _, col := range priorityColumns {
		if _, ok := row[col]; ok {
			columns = append(columns, col)
			seen[col] = true
		}
	}
	var rest []string
	for col := range row {
		if !seen[col] && !hiddenColumns[col] {
			rest = append(rest, col)
		}
	}
	sort.Strings(rest)
	return append(columns, rest...)
}

func formatCell(col string, v any) string {
	switch col {
	case "execution_time":
		if !isZero(v) {
			return formatTime(v, "01/02 15:04")
		}
	case "metadata":
		if !isZero(v) {
			return formatMetadata(v)
		}
	case "id":
		return formatID(v)
	case "success":
		if _, ok := v.(bool); ok {
			glyph, label := status(v)
			return glyph + " " + label
		}
	case "duration":
		if !isZero(v) {
			return formatDuration(v)
		}
	}
	return stringify(v)
}

func displayName(col string) string {
	if name, ok := headerNames[col]; ok {
		return name
	}
	words := strings.Split(col, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
