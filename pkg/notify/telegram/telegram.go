// Package telegram posts saved-interview summaries to a Telegram chat.
package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jxucoder/TeleInterview/pkg/model"
	"github.com/jxucoder/TeleInterview/pkg/notify"
)

// Notifier sends to one Telegram chat.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

var _ notify.Notifier = (*Notifier)(nil)

// New authorizes the bot token and returns a notifier for chatID.
func New(token string, chatID int64) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating Telegram bot: %w", err)
	}
	return &Notifier{api: api, chatID: chatID}, nil
}

// NewWithAPI wraps an already-authorized bot.
func NewWithAPI(api *tgbotapi.BotAPI, chatID int64) *Notifier {
	return &Notifier{api: api, chatID: chatID}
}

// Name returns the channel name.
func (n *Notifier) Name() string { return "telegram" }

// InterviewSaved sends the summary as MarkdownV2, retrying as plain text if
// Telegram rejects the formatting.
func (n *Notifier) InterviewSaved(ctx context.Context, rec *model.InterviewRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	summary := notify.Summary(rec)
	msg := tgbotapi.NewMessage(n.chatID, "*"+escapeMarkdown(rec.CandidateName)+"*\n"+escapeMarkdown(summary))
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	if _, err := n.api.Send(msg); err != nil {
		msg.ParseMode = ""
		msg.Text = summary
		if _, err := n.api.Send(msg); err != nil {
			return fmt.Errorf("sending telegram message: %w", err)
		}
	}
	return nil
}

func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]",
		"(", "\\(", ")", "\\)", "~", "\\~", "`", "\\`",
		">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
		"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}",
		".", "\\.", "!", "\\!",
	)
	return replacer.Replace(s)
}
