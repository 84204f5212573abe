// Package slackbot serves the slash commands over Slack Socket Mode.
package slackbot

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"

	"github.com/sidv1711/slack-bot/pkg/config"
	"github.com/sidv1711/slack-bot/pkg/identity"
	"github.com/sidv1711/slack-bot/pkg/logging"
	"github.com/sidv1711/slack-bot/pkg/reports"
	"github.com/sidv1711/slack-bot/pkg/router"
	"github.com/sidv1711/slack-bot/pkg/service"
	"github.com/sidv1711/slack-bot/pkg/sqlgen"
)

const (
	defaultExecutionLimit = 5
	maxExecutionLimit     = 20
	commandTimeout        = 2 * time.Minute
)

var (
	testIDPattern     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Deps are the services the commands call. Only Dispatcher is required.
type Deps struct {
	Dispatcher *router.Dispatcher
	Executor   sqlgen.Executor
	Reports    LinkGenerator
	Linker     *identity.Linker
	Identities identity.Store
	Table      string
}

// Bot handles slash commands.
type Bot struct {
	api    SlackAPI
	socket *socketmode.Client
	deps   Deps
	logger *zap.Logger
	ack    func(socketmode.Request)
}

// NewClient builds the Web API client for the tokens in cfg.
func NewClient(cfg config.SlackConfig) (*slack.Client, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if !strings.HasPrefix(cfg.AppToken, "xapp-") {
		return nil, fmt.Errorf("app token must start with xapp-")
	}
	return slack.New(cfg.BotToken,
		slack.OptionDebug(cfg.Debug),
		slack.OptionAppLevelToken(cfg.AppToken),
	), nil
}

// New creates a bot that receives commands over Socket Mode on client.
func New(client *slack.Client, debug bool, deps Deps, logger *zap.Logger) (*Bot, error) {
	b, err := NewWithAPI(client, deps, logger)
	if err != nil {
		return nil, err
	}
	b.socket = socketmode.New(client, socketmode.OptionDebug(debug))
	b.ack = func(req socketmode.Request) { b.socket.Ack(req) }
	return b, nil
}

// NewWithAPI creates a bot over api without a Socket Mode connection.
func NewWithAPI(api SlackAPI, deps Deps, logger *zap.Logger) (*Bot, error) {
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Table == "" {
		deps.Table = sqlgen.DefaultTable
	}
	if !identifierPattern.MatchString(deps.Table) {
		return nil, fmt.Errorf("invalid table name %q", deps.Table)
	}
	return &Bot{api: api, deps: deps, logger: logging.OrNop(logger)}, nil
}

// EmailLookup resolves Slack emails through the API, for identity.WithEmailLookup.
func EmailLookup(api SlackAPI) identity.EmailLookup {
	return func(_ context.Context, userID string) (string, error) {
		u, err := api.GetUserInfo(userID)
		if err != nil {
			return "", err
		}
		return u.Profile.Email, nil
	}
}

// Run processes Socket Mode events until ctx is canceled.
func (b *Bot) Run(ctx context.Context) error {
	if b.socket == nil {
		return fmt.Errorf("socket mode client is not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.serve(runCtx, b.socket.Events)
	}()
	err := b.socket.RunContext(runCtx)
	cancel()
	<-done
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// serve dispatches events until ctx is done or events is closed, then waits
// for in-flight commands.
func (b *Bot) serve(ctx context.Context, events <-chan socketmode.Event) {
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			b.handleEvent(ctx, evt, &wg)
		}
	}
}

func (b *Bot) handleEvent(ctx context.Context, evt socketmode.Event, wg *sync.WaitGroup) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		b.logger.Info("connecting to slack socket mode")
	case socketmode.EventTypeConnected:
		b.logger.Info("connected to slack socket mode")
	case socketmode.EventTypeConnectionError:
		b.logger.Warn("slack connection error", zap.Any("data", evt.Data))
	case socketmode.EventTypeSlashCommand:
		cmd, ok := evt.Data.(slack.SlashCommand)
		if !ok {
			return
		}
		if evt.Request != nil && b.ack != nil {
			b.ack(*evt.Request)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commandTimeout)
			defer cancel()
			b.HandleCommand(cctx, cmd)
		}()
	}
}

// HandleCommand runs one slash command to completion.
func (b *Bot) HandleCommand(ctx context.Context, cmd slack.SlashCommand) {
	defer func() {
		if p := recover(); p != nil {
			b.logger.Error("slash command panic", zap.String("command", cmd.Command), zap.Any("panic", p), zap.Stack("stack"))
			b.post(cmd.ChannelID, fmt.Sprintf("❌ Sorry %s, something went wrong handling `%s`.", cmd.UserName, cmd.Command))
		}
	}()
	b.logger.Info("slash command",
		zap.String("command", cmd.Command),
		zap.String("user_id", cmd.UserID),
		zap.String("channel_id", cmd.ChannelID))

	switch cmd.Command {
	case "/ai":
		b.handleAI(ctx, cmd)
	case "/hello":
		b.handleHello(cmd)
	case "/connect-slack":
		b.handleConnect(cmd)
	case "/test-executions":
		b.handleExecutions(ctx, cmd)
	default:
		b.ephemeral(cmd, fmt.Sprintf("Unknown command: %s", cmd.Command))
	}
}

func (b *Bot) post(channel, text string, opts ...slack.MsgOption) string {
	opts = append([]slack.MsgOption{slack.MsgOptionText(text, false)}, opts...)
	_, ts, err := b.api.PostMessage(channel, opts...)
	if err != nil {
		b.logger.Warn("post message failed", zap.String("channel_id", channel), zap.Error(err))
		return ""
	}
	return ts
}

// replace updates the message at ts, or posts a new one when there is none.
func (b *Bot) replace(channel, ts, text string) string {
	if ts == "" {
		return b.post(channel, text)
	}
	if _, _, _, err := b.api.UpdateMessage(channel, ts, slack.MsgOptionText(text, false)); err != nil {
		b.logger.Warn("update message failed", zap.String("channel_id", channel), zap.Error(err))
		return b.post(channel, text)
	}
	return ts
}

func (b *Bot) ephemeral(cmd slack.SlashCommand, text string) {
	if _, err := b.api.PostEphemeral(cmd.ChannelID, cmd.UserID, slack.MsgOptionText(text, false)); err != nil {
		b.logger.Warn("post ephemeral failed", zap.Error(err))
	}
}

func (b *Bot) handleAI(ctx context.Context, cmd slack.SlashCommand) {
	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		b.post(cmd.ChannelID, aiHelp)
		return
	}

	ts := b.post(cmd.ChannelID, fmt.Sprintf("🤖 Processing your request: _%s_\n⏳ Thinking...", text))
	rc := service.RequestContext{
		"user_id":            cmd.UserID,
		service.KeyUserName:  cmd.UserName,
		"channel_id":         cmd.ChannelID,
		"team_id":            cmd.TeamID,
		"platform":           "slack",
		service.KeyTimestamp: time.Now().UTC().Format(time.RFC3339),
	}
	resp := b.deps.Dispatcher.Route(ctx, text, rc, "")
	ts = b.replace(cmd.ChannelID, ts, FormatAIResponse(resp, cmd.UserName))
	if ts == "" {
		return
	}

	if resp.Success() && resp.Result.SQL != nil && len(resp.Result.SQL.Blocks) > 0 {
		_, _, err := b.api.PostMessage(cmd.ChannelID,
			slack.MsgOptionText(resp.Result.SQL.CompactTable, false),
			slack.MsgOptionBlocks(resp.Result.SQL.Blocks...),
			slack.MsgOptionTS(ts))
		if err != nil {
			b.logger.Warn("post result blocks failed", zap.Error(err))
		}
	}
	if err := b.api.AddReaction("white_check_mark", slack.NewRefToMessage(cmd.ChannelID, ts)); err != nil {
		b.logger.Debug("add reaction failed", zap.Error(err))
	}
}

func (b *Bot) handleHello(cmd slack.SlashCommand) {
	name := cmd.UserName
	if u, err := b.api.GetUserInfo(cmd.UserID); err == nil && u.RealName != "" {
		name = u.RealName
	}
	greeting := fmt.Sprintf("👋 Hello %s!", name)
	if extra := strings.TrimSpace(cmd.Text); extra != "" {
		greeting += " " + extra
	}
	b.post(cmd.ChannelID, greeting, slack.MsgOptionBlocks(
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, greeting, false, false), nil, nil),
	))
}

func (b *Bot) handleConnect(cmd slack.SlashCommand) {
	if b.deps.Linker == nil {
		b.ephemeral(cmd, "🔗 Account linking is not configured for this workspace.")
		return
	}
	link := b.deps.Linker.AuthURL(cmd.UserID, cmd.TeamID)
	b.ephemeral(cmd, fmt.Sprintf("🔗 *Account Connection for %s*\n\nClick the link below to connect your Slack account:\n\n👉 <%s|Connect account>\n\n"+
		"_This will allow you to access personalized features and reports._", cmd.UserName, link))
}

// parseExecutionsArgs extracts the test id and row limit.
func parseExecutionsArgs(text string) (string, int) {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", defaultExecutionLimit
	}
	limit := defaultExecutionLimit
	for _, part := range parts[1:] {
		raw := strings.TrimPrefix(part, "limit=")
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			continue
		}
		limit = min(n, maxExecutionLimit)
		break
	}
	return parts[0], limit
}

func (b *Bot) handleExecutions(ctx context.Context, cmd slack.SlashCommand) {
	if b.deps.Identities == nil || b.deps.Executor == nil {
		b.post(cmd.ChannelID, "❌ Test executions are not available: the database is not configured.")
		return
	}
	providerUser, err := identity.ProviderUserFor(ctx, b.deps.Identities, cmd.UserID, cmd.TeamID)
	if err != nil {
		b.logger.Error("identity lookup failed", zap.Error(err))
		b.post(cmd.ChannelID, fmt.Sprintf("❌ *Error*\n\nSorry %s, there was an error processing your request:\n`%v`", cmd.UserName, err))
		return
	}
	if providerUser == "" {
		b.post(cmd.ChannelID, authRequired(cmd.UserName))
		return
	}

	text := strings.TrimSpace(cmd.Text)
	if strings.EqualFold(text, "list") {
		b.listTests(ctx, cmd)
		return
	}
	testID, limit := parseExecutionsArgs(text)
	if testID == "" {
		b.post(cmd.ChannelID, executionsHelp(cmd.UserName))
		return
	}
	if !testIDPattern.MatchString(testID) {
		b.post(cmd.ChannelID, fmt.Sprintf("❌ `%s` is not a valid test id.", testID))
		return
	}

	ts := b.post(cmd.ChannelID, fmt.Sprintf("🔄 *Processing test executions for `%s`*\n\nQuerying database and generating report links... Please wait.", testID))
	query := fmt.Sprintf(`SELECT id, test_uid, execution_time, success, metadata, duration, created_at, updated_at
FROM %s
WHERE test_uid = $1
ORDER BY execution_time DESC
LIMIT $2`, b.deps.Table)
	result, err := b.deps.Executor.ExecuteSelect(ctx, query, testID, limit)
	if err != nil {
		b.logger.Error("executions query failed", zap.String("test_id", testID), zap.Error(err))
		b.replace(cmd.ChannelID, ts, fmt.Sprintf("❌ *Database Error*\n\nSorry %s, there was an error querying the database:\n`%v`", cmd.UserName, err))
		return
	}

	var links map[string]string
	if b.deps.Reports != nil && len(result.Rows) > 0 {
		links = b.deps.Reports.GenerateLinks(ctx, reports.ExecutionsFromRows(result.Rows))
	}
	b.replace(cmd.ChannelID, ts, executionsMessage(testID, result.Rows, links))
}

func (b *Bot) listTests(ctx context.Context, cmd slack.SlashCommand) {
	query := fmt.Sprintf(`SELECT test_uid, COUNT(*) AS execution_count, MAX(execution_time) AS latest_execution
FROM %s
GROUP BY test_uid
ORDER BY latest_execution DESC
LIMIT 20`, b.deps.Table)
	result, err := b.deps.Executor.ExecuteSelect(ctx, query)
	if err != nil {
		b.logger.Error("test list query failed", zap.Error(err))
		b.post(cmd.ChannelID, fmt.Sprintf("❌ Failed to fetch test list: %v", err))
		return
	}
	b.post(cmd.ChannelID, testListMessage(cmd.UserName, result.Rows))
}
