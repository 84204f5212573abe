package slackbot

import (
	"fmt"
	"strings"
	"time"

	"github.com/sidv1711/slack-bot/pkg/reports"
	"github.com/sidv1711/slack-bot/pkg/router"
)

const aiHelp = `🤖 *AI Assistant Help*

I can help you with various tasks using AI:

*💬 General Questions:*
• ` + "`/ai What is machine learning?`" + `
• ` + "`/ai Explain REST APIs to me`" + `

*🗄️ Database Queries:*
• ` + "`/ai Show me failed tests from yesterday`" + `
• ` + "`/ai Count how many tests passed this week`" + `

*💻 Code Generation:*
• ` + "`/ai Write a Python function to calculate fibonacci numbers`" + `
• ` + "`/ai Create a JavaScript function that validates emails`" + `

*🎯 Smart Routing:*
I detect what kind of request you are making and route it to the matching service:
• *NL2SQL* for database questions
• *Code Generation* for programming tasks
• *General Chat* for conversations and explanations

Just type ` + "`/ai`" + ` followed by your question or request!`

var serviceEmoji = map[string]string{
	"nl2sql":          "🗄️",
	"code_generation": "💻",
	"general_chat":    "💬",
}

var serviceTitle = map[string]string{
	"nl2sql":          "NL2SQL",
	"code_generation": "Code Generation",
	"general_chat":    "General Chat",
}

func titleFor(name string) string {
	if t, ok := serviceTitle[name]; ok {
		return t
	}
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// FormatAIResponse renders a routed response as Slack mrkdwn.
func FormatAIResponse(resp *router.Response, userName string) string {
	if resp == nil || !resp.Success() {
		msg := "Unknown error"
		if resp != nil && resp.Result != nil && resp.Result.Error != "" {
			msg = resp.Result.Error
		}
		out := fmt.Sprintf("❌ Sorry %s, I couldn't process your request: %s", userName, msg)
		if resp != nil && resp.Suggestion != "" {
			out += "\n💡 " + resp.Suggestion
		}
		return out
	}

	routing := resp.Routing
	emoji, ok := serviceEmoji[routing.Service]
	if !ok {
		emoji = "🤖"
	}
	parts := []string{
		fmt.Sprintf("🤖 *AI Response for %s*", userName),
		fmt.Sprintf("%s _Routed to: %s_ (confidence: %.0f%%)", emoji, titleFor(routing.Service), routing.Confidence*100),
	}

	res := resp.Result
	switch {
	case res.SQL != nil:
		parts = append(parts, "\n📊 *Generated SQL:*", "```sql\n"+res.SQL.SQLQuery+"\n```")
		if res.SQL.CompactTable != "" {
			parts = append(parts, res.SQL.CompactTable)
		}
		if res.SQL.Explanation != "" {
			parts = append(parts, "📝 *Explanation:* "+res.SQL.Explanation)
		}
	case res.Code != nil:
		lang := res.Code.Language
		if lang == "" {
			lang = "code"
		}
		parts = append(parts, fmt.Sprintf("\n💻 *Generated %s:*", titleFor(lang)), "```"+lang+"\n"+res.Code.Code+"\n```")
		if res.Code.Explanation != "" {
			parts = append(parts, "📝 *Explanation:* "+res.Code.Explanation)
		}
		if res.Code.UsageExample != "" {
			parts = append(parts, "🎯 *Usage:* "+res.Code.UsageExample)
		}
	case res.Chat != nil:
		parts = append(parts, "\n💬 "+res.Chat.Response)
	}

	reasoning := routing.Reasoning
	if reasoning == "" {
		reasoning = "No reasoning provided"
	}
	if routing.Fallback {
		reasoning += " (fallback)"
	}
	parts = append(parts, "\n_Reasoning: "+reasoning+"_")
	return strings.Join(parts, "\n")
}

func executionsHelp(userName string) string {
	return fmt.Sprintf(`📋 *Test Executions Command Help*

Hi %s! Here's how to use the `+"`/test-executions`"+` command:

*📖 Usage:*
• `+"`/test-executions <test-id>`"+` shows the last 5 executions
• `+"`/test-executions <test-id> <number>`"+` shows the last N executions (max 20)
• `+"`/test-executions <test-id> limit=<number>`"+` is an alternative format
• `+"`/test-executions list`"+` shows available test IDs

*🔐 Note:* You must connect your account to access reports. Run `+"`/connect-slack`"+` if needed.`, userName)
}

func authRequired(userName string) string {
	return fmt.Sprintf("🔐 *Authentication Required*\n\nHi %s! You need to connect your Slack account first.\n\n"+
		"*Please run:* `/connect-slack`\n\nThis will link your accounts so you can access personalized test reports.", userName)
}

func formatExecutionTime(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format("01/02 15:04")
	case string:
		if t == "" {
			return "Unknown"
		}
		if ts, err := time.Parse(time.RFC3339Nano, strings.Replace(t, "Z", "+00:00", 1)); err == nil {
			return ts.Format("01/02 15:04")
		}
		if len(t) > 10 {
			return t[:10]
		}
		return t
	case nil:
		return "Unknown"
	default:
		return fmt.Sprint(t)
	}
}

func formatSeconds(v any) string {
	switch d := v.(type) {
	case float64:
		return fmt.Sprintf("%.1fs", d)
	case float32:
		return fmt.Sprintf("%.1fs", d)
	case int:
		return fmt.Sprintf("%.1fs", float64(d))
	case int32:
		return fmt.Sprintf("%.1fs", float64(d))
	case int64:
		return fmt.Sprintf("%.1fs", float64(d))
	case nil:
		return "Unknown"
	default:
		s := fmt.Sprint(d)
		if s == "" {
			return "Unknown"
		}
		return s
	}
}

// executionsMessage renders the executions table with report links.
func executionsMessage(testID string, rows []map[string]any, links map[string]string) string {
	if len(rows) == 0 {
		return fmt.Sprintf("📋 No executions found for test `%s`", testID)
	}
	lines := []string{
		fmt.Sprintf("📊 *Test Executions for `%s`*", testID),
		fmt.Sprintf("Found %d execution(s)", len(rows)),
		"",
		"` # | Status       | Execution Time | Duration | Report`",
		"`---+--------------+----------------+----------+-------`",
	}

	var passed, failed int
	for i, row := range rows {
		status := "❓ UNK"
		switch row["success"] {
		case true:
			status = "✅ PASS"
			passed++
		case false:
			status = "❌ FAIL"
			failed++
		}
		id := ""
		if v, ok := row["id"]; ok && v != nil {
			id = fmt.Sprint(v)
		}
		lines = append(lines, fmt.Sprintf("`%2d | %-12s | %-14s | %-8s |` %s",
			i+1, status, formatExecutionTime(row["execution_time"]), formatSeconds(row["duration"]),
			reports.FormatLink(links[id], "View")))
	}

	lines = append(lines, "", "*Summary:*")
	if passed > 0 {
		lines = append(lines, fmt.Sprintf("• ✅ %d passed", passed))
	}
	if failed > 0 {
		lines = append(lines, fmt.Sprintf("• ❌ %d failed", failed))
	}
	if unknown := len(rows) - passed - failed; unknown > 0 {
		lines = append(lines, fmt.Sprintf("• 🟡 %d unknown", unknown))
	}
	lines = append(lines, "", "💡 Click report links above to view detailed test results.")
	return strings.Join(lines, "\n")
}

func testListMessage(userName string, rows []map[string]any) string {
	if len(rows) == 0 {
		return "📋 No tests found in the database."
	}
	lines := []string{
		"📋 *Available Test IDs* (showing last 20)",
		fmt.Sprintf("Hi %s! Here are the test IDs you can use:", userName),
		"",
	}
	for i, row := range rows {
		latest := "Unknown"
		if v := row["latest_execution"]; v != nil {
			s := fmt.Sprint(v)
			if ts, ok := v.(time.Time); ok {
				s = ts.Format(time.RFC3339)
			}
			if len(s) >= 10 {
				latest = s[:10]
			} else if s != "" {
				latest = s
			}
		}
		lines = append(lines, fmt.Sprintf("%d. `%v` (%v executions, latest: %s)",
			i+1, row["test_uid"], row["execution_count"], latest))
	}
	first := fmt.Sprint(rows[0]["test_uid"])
	lines = append(lines, "", "*Usage Examples:*",
		fmt.Sprintf("• `/test-executions %s 5`", first),
		fmt.Sprintf("• `/test-executions %s limit=10`", first))
	return strings.Join(lines, "\n")
}
