package format

import (
	"fmt"
	"strings"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRows(n int) []map[string]any {
	rows := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, map[string]any{
			"test_uid":       fmt.Sprintf("ABC-%d", i),
			"success":        i%2 == 0,
			"execution_time": "2024-01-15T10:30:00Z",
			"metadata": map[string]any{
				"duration":    float64(12),
				"environment": "staging",
				"error":       "connection refused by upstream host",
			},
			"created_at": "2024-01-15T10:30:00Z",
		})
	}
	return rows
}

func TestEmptyAndCount(t *testing.T) {
	assert.Equal(t, "📊 No results found.", Table(nil, 0))
	assert.Equal(t, "📊 No results found.", Compact(nil, 0))

	count := []map[string]any{{"count": int64(42)}}
	assert.Equal(t, "📊 **Result:** 42", Table(count, 0))
	assert.Equal(t, "📊 **Answer:** 42", Compact(count, 0))

	// count alongside other columns is an ordinary row
	notCount := []map[string]any{{"count": int64(1), "test_uid": "X"}}
	assert.Contains(t, Table(notCount, 0), "```")
}

func TestTableLayout(t *testing.T) {
	out := Table(sampleRows(3), 0)

	require.True(t, strings.HasPrefix(out, "```\n┌"))
	assert.Contains(t, out, "📊 **3 rows displayed**")
	assert.NotContains(t, out, "total results")
	assert.NotContains(t, out, "Created At")

	lines := strings.Split(out, "\n")
	header := lines[2]
	assert.True(t, strings.HasPrefix(header, "│ Test ID"))
	idx := func(s string) int { return strings.Index(header, s) }
	assert.Less(t, idx("Test ID"), idx("Result"))
	assert.Less(t, idx("Result"), idx("Time"))
	assert.Less(t, idx("Time"), idx("Metadata"))

	assert.Contains(t, out, "✅ Passed")
	assert.Contains(t, out, "❌ Failed")
	assert.Contains(t, out, "01/15 10:30")
}

func TestTableTruncation(t *testing.T) {
	out := Table(sampleRows(20), 15)
	assert.Contains(t, out, "📊 **15 rows displayed** • 📄 _(First 15 of 20 total results)_")
	assert.NotContains(t, out, "ABC-15")
}

func TestTableColumnWidthIsCapped(t *testing.T) {
	rows := []map[string]any{{"notes": strings.Repeat("x", 60)}}
	out := Table(rows, 0)
	assert.Contains(t, out, "│ "+strings.Repeat("x", 25)+" │")
	assert.NotContains(t, out, strings.Repeat("x", 26))
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		col  string
		in   any
		want string
	}{
		{"id", "0123456789abcdef", "01234567..."},
		{"id", "short", "short"},
		{"success", true, "✅ Passed"},
		{"success", "yes", "yes"},
		{"duration", 12.34, "12.3s"},
		{"duration", float64(125), "2m 5.0s"},
		{"duration", 0.0, "0"},
		{"execution_time", "2024-03-02T08:05:00.123456", "03/02 08:05"},
		{"execution_time", "yesterday at noon sharp", "yesterday at noo"},
		{"metadata", map[string]any{"duration": 3.5, "environment": "prod"}, "3.5s | env:prod"},
		{"metadata", map[string]any{"error": "a very long error message indeed"}, "err:a very long error me..."},
		{"metadata", "plain metadata string value here", "plain metadata string val"},
		{"rows", float64(7), "7"},
	}
	for _, tt := range tests {
		t.Run(tt.col+"/"+fmt.Sprint(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, formatCell(tt.col, tt.in))
		})
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Test ID", displayName("test_uid"))
	assert.Equal(t, "Time", displayName("execution_time"))
	assert.Equal(t, "Result", displayName("success"))
	assert.Equal(t, "Run Count", displayName("run_count"))
}

func TestCompact(t *testing.T) {
	out := Compact(sampleRows(2), 0)
	want := strings.Join([]string{
		"✅ **ABC-0** - Passed",
		"   🕐 01/15 10:30",
		"   ⏱️12s 🌍staging",
		"",
		"❌ **ABC-1** - Failed",
		"   🕐 01/15 10:30",
		"   ⏱️12s 🌍staging",
	}, "\n")
	assert.Equal(t, want, out)

	out = Compact([]map[string]any{{"value": 1}}, 0)
	assert.Equal(t, "🔹 **Row 1** - Unknown", out)

	out = Compact(sampleRows(5), 2)
	assert.True(t, strings.HasSuffix(out, "\n\n📄 _Showing 2 of 5 results_"))
}

func textOf(t *testing.T, b slack.Block) string {
	t.Helper()
	switch v := b.(type) {
	case *slack.SectionBlock:
		if v.Text != nil {
			return v.Text.Text
		}
		var parts []string
		for _, f := range v.Fields {
			parts = append(parts, f.Text)
		}
		return strings.Join(parts, "\n")
	case *slack.ContextBlock:
		var parts []string
		for _, e := range v.ContextElements.Elements {
			if tb, ok := e.(*slack.TextBlockObject); ok {
				parts = append(parts, tb.Text)
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

func TestBlocks(t *testing.T) {
	empty := Blocks(nil, 0)
	require.Len(t, empty, 1)
	assert.Contains(t, textOf(t, empty[0]), "No results found")

	blocks := Blocks(sampleRows(12), 0)
	assert.Equal(t, "📊 *Query Results* (10 of 12 rows)\n✅ 6 passed • ❌ 6 failed", textOf(t, blocks[0]))
	assert.IsType(t, &slack.DividerBlock{}, blocks[1])

	fields := textOf(t, blocks[2])
	assert.Contains(t, fields, "*🆔 Test ID:*\n`ABC-0`")
	assert.Contains(t, fields, "*📊 Result:*\n✅ Passed")
	assert.Contains(t, fields, "*🕐 Time:*\nJan 15, 10:30")

	// passing rows never show the error
	assert.Equal(t, "⏱️ 12s • 🟡 staging", textOf(t, blocks[3]))
	failed := textOf(t, blocks[6])
	assert.Contains(t, failed, "⚠️ connection refused by upstream host")

	last := textOf(t, blocks[len(blocks)-1])
	assert.Contains(t, last, "Showing first 10 of 12 total results")

	var dividers int
	for _, b := range blocks {
		if _, ok := b.(*slack.DividerBlock); ok {
			dividers++
		}
	}
	// one under the header plus one between each pair of rows
	assert.Equal(t, 1+9, dividers)
}

func TestBlocksEnvironmentGlyph(t *testing.T) {
	rows := []map[string]any{{
		"test_uid": "X",
		"success":  false,
		"metadata": map[string]any{"environment": "qa", "error": strings.Repeat("e", 60)},
	}}
	blocks := Blocks(rows, 0)
	ctx := textOf(t, blocks[3])
	assert.Equal(t, "🔵 qa • ⚠️ "+strings.Repeat("e", 50)+"...", ctx)
}
