package bot

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// Messenger posts replies back to the messaging platform.
type Messenger interface {
	PostThreadReply(ctx context.Context, channelID, threadTS, text string) error
	BotUserID() string
}

// SlackMessenger implements Messenger on the Slack Web API.
type SlackMessenger struct {
	api       *slack.Client
	botUserID string
}

// NewSlackMessenger resolves the bot's own user id via auth.test so events
// authored by the bot can be ignored.
func NewSlackMessenger(ctx context.Context, token string, opts ...slack.Option) (*SlackMessenger, error) {
	api := slack.New(token, opts...)
	auth, err := api.AuthTestContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate bot: %w", err)
	}
	return &SlackMessenger{api: api, botUserID: auth.UserID}, nil
}

func (m *SlackMessenger) PostThreadReply(ctx context.Context, channelID, threadTS, text string) error {
	_, _, err := m.api.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(threadTS),
	)
	if err != nil {
		return fmt.Errorf("failed to post message: %w", err)
	}
	return nil
}

func (m *SlackMessenger) BotUserID() string {
	return m.botUserID
}
