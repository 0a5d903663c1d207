// Package slack posts saved-interview summaries to a Slack channel.
package slack

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/jxucoder/TeleInterview/pkg/model"
	"github.com/jxucoder/TeleInterview/pkg/notify"
)

// Notifier posts to one Slack channel with a bot token.
type Notifier struct {
	api     *slack.Client
	channel string
}

var _ notify.Notifier = (*Notifier)(nil)

// New creates a Slack notifier. opts are passed to slack.New.
func New(botToken, channel string, opts ...slack.Option) *Notifier {
	return &Notifier{api: slack.New(botToken, opts...), channel: channel}
}

// Name returns the channel name.
func (n *Notifier) Name() string { return "slack" }

// InterviewSaved posts a header block with the score and a context block with
// the per-question breakdown.
func (n *Notifier) InterviewSaved(ctx context.Context, rec *model.InterviewRecord) error {
	header := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf(":clipboard: *Interview saved*: %s, %s (%s)\n*Final score:* %.2f/10",
				rec.CandidateName, rec.JobTitle, rec.InterviewType, rec.FinalScore),
			false, false),
		nil, nil)
	detail := slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.PlainTextType, notify.Summary(rec), false, false))

	_, _, err := n.api.PostMessageContext(ctx, n.channel,
		slack.MsgOptionBlocks(header, slack.NewDividerBlock(), detail),
		slack.MsgOptionText(notify.Summary(rec), false),
	)
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	return nil
}
