// Package telegram mirrors high-signal business events into an ops chat.
// Disabled entirely when no chat is configured.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/set-night/coinledger/internal/config"
)

const maxMessageLen = 4096

type OpsLogger struct {
	bot *bot.Bot
	cfg *config.Config
}

func NewOpsLogger(b *bot.Bot, cfg *config.Config) *OpsLogger {
	return &OpsLogger{bot: b, cfg: cfg}
}

// SweepCompleted implements maintenance.Reporter.
func (l *OpsLogger) SweepCompleted(downgraded int, took time.Duration) {
	l.log(l.cfg.OpsTopicSweep, fmt.Sprintf("🧹 *Subscription Sweep*\n\n*Downgraded:* %d\n*Took:* %s", downgraded, took.Round(time.Millisecond)))
}

// TopUpConfirmed implements payment.Reporter.
func (l *OpsLogger) TopUpConfirmed(accountID, coins int64) {
	l.log(l.cfg.OpsTopicTopUp, fmt.Sprintf("💰 *Top-Up*\n\n*Account:* `%d`\n*Coins:* %d", accountID, coins))
}

func (l *OpsLogger) TransferCompleted(senderID, recipientID, amount, fee int64) {
	l.log(l.cfg.OpsTopicTransfer, fmt.Sprintf("💸 *Transfer*\n\n*From:* `%d`\n*To:* `%d`\n*Amount:* %d\n*Fee:* %d", senderID, recipientID, amount, fee))
}

func (l *OpsLogger) Error(err error, where string) {
	l.log(l.cfg.OpsTopicError, fmt.Sprintf("❌ *Error*\n\n*Context:* %s\n*Error:* `%s`\n*Time:* %s",
		where, err.Error(), time.Now().Format("2006-01-02 15:04:05")))
}

func (l *OpsLogger) log(topicID int, message string) {
	if l == nil || l.bot == nil || l.cfg.OpsChatID == 0 {
		return
	}

	if len([]rune(message)) > maxMessageLen {
		message = string([]rune(message)[:maxMessageLen-20]) + "\n\n... (truncated)"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := l.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          l.cfg.OpsChatID,
		Text:            message,
		ParseMode:       "Markdown",
		MessageThreadID: topicID,
	})
	if err != nil {
		slog.Error("failed to send ops log", "topic", topicID, "error", err)
	}
}
