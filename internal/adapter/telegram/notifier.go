// Package telegram notifies an owner's linked Telegram chat when a
// scheduling request lands on a preferred_conflict decision. It is
// outbound-only: the scheduling engine is driven over HTTP, so there is
// no inbound update stream to dispatch or rate-limit here.
package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
)

// Notifier sends best-effort conflict DMs over a configured bot token.
type Notifier struct {
	bot *bot.Bot
}

// NewNotifier builds a Notifier from a bot API token.
func NewNotifier(token string) (*Notifier, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: new bot: %w", err)
	}
	return &Notifier{bot: b}, nil
}

// NotifyConflict DMs chatID a human-readable account of a
// preferred_conflict decision. Callers treat a returned error as
// non-fatal: the HTTP response to the owner already carried the
// decision, so a failed DM loses a convenience, not the outcome.
func (n *Notifier) NotifyConflict(ctx context.Context, chatID int64, message string) error {
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   message,
	})
	if err != nil {
		return fmt.Errorf("telegram: notify conflict: %w", err)
	}
	return nil
}
