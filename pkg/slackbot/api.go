package slackbot

import (
	"context"

	"github.com/slack-go/slack"

	"github.com/sidv1711/slack-bot/pkg/reports"
)

// SlackAPI is the subset of slack.Client the bot uses.
type SlackAPI interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
	PostEphemeral(channelID, userID string, options ...slack.MsgOption) (string, error)
	UpdateMessage(channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
	AddReaction(name string, item slack.ItemRef) error
	GetUserInfo(userID string) (*slack.User, error)
}

// LinkGenerator resolves report links for executions.
type LinkGenerator interface {
	GenerateLinks(ctx context.Context, executions []reports.Execution) map[string]string
}
