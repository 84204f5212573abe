package format

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"
)

// DefaultBlockRows is the row cap for Block Kit output.
const DefaultBlockRows = 10

var envGlyphs = map[string]string{
	"production":  "🔴",
	"staging":     "🟡",
	"development": "🟢",
}

// Blocks renders rows as Slack Block Kit cards: a summary header, one section
// per row with a metadata context line, and a truncation footer.
func Blocks(rows []map[string]any, maxRows int) []slack.Block {
	if len(rows) == 0 {
		return []slack.Block{
			slack.NewSectionBlock(markdown("📊 *No results found*\n_Try adjusting your query criteria_"), nil, nil),
		}
	}
	if maxRows <= 0 {
		maxRows = DefaultBlockRows
	}

	limited := rows
	if len(rows) > maxRows {
		limited = rows[:maxRows]
	}

	var passed, failed int
	for _, r := range rows {
		if b, ok := r["success"].(bool); ok {
			if b {
				passed++
			} else {
				failed++
			}
		}
	}

	header := fmt.Sprintf("📊 *Query Results* (%d of %d rows)", len(limited), len(rows))
	if _, ok := rows[0]["success"]; ok {
		header += fmt.Sprintf("\n✅ %d passed • ❌ %d failed", passed, failed)
	}

	blocks := []slack.Block{
		slack.NewSectionBlock(markdown(header), nil, nil),
		slack.NewDividerBlock(),
	}

	for i, row := range limited {
		glyph, label := status(row["success"])

		var fields []*slack.TextBlockObject
		if v, ok := row["test_uid"]; ok {
			fields = append(fields, markdown(fmt.Sprintf("*🆔 Test ID:*\n`%s`", stringify(v))))
		}
		if _, ok := row["success"]; ok {
			fields = append(fields, markdown(fmt.Sprintf("*📊 Result:*\n%s %s", glyph, label)))
		}
		if v, ok := row["execution_time"]; ok {
			fields = append(fields, markdown("*🕐 Time:*\n"+formatTime(v, "Jan 02, 15:04")))
		}
		if len(fields) > 0 {
			blocks = append(blocks, slack.NewSectionBlock(nil, fields, nil))
		}

		if meta, ok := row["metadata"].(map[string]any); ok && len(meta) > 0 {
			var elements []string
			if d, ok := meta["duration"]; ok {
				elements = append(elements, "⏱️ "+stringify(d)+"s")
			}
			if env, ok := meta["environment"]; ok {
				name := stringify(env)
				emoji, known := envGlyphs[name]
				if !known {
					emoji = "🔵"
				}
				elements = append(elements, emoji+" "+name)
			}
			if e, ok := meta["error"]; ok && label == "Failed" {
				msg := stringify(e)
				short := truncate(msg, 50)
				if short != msg {
					short += "..."
				}
				elements = append(elements, "⚠️ "+short)
			}
			if len(elements) > 0 {
				blocks = append(blocks, slack.NewContextBlock("", markdown(strings.Join(elements, " • "))))
			}
		}

		if i < len(limited)-1 {
			blocks = append(blocks, slack.NewDividerBlock())
		}
	}

	if len(rows) > maxRows {
		blocks = append(blocks, slack.NewContextBlock("", markdown(fmt.Sprintf(
			"📄 *Showing first %d of %d total results* | Use LIMIT in your query to see more specific results",
			maxRows, len(rows)))))
	}
	return blocks
}

func markdown(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}
