// Package progress renders the progressive status updates a worker posts
// while a job is in flight (spec §4.7): the same chat message is edited in
// place through each stage rather than sending a new message per update, and
// edits are idempotent so a retried stage never double-posts.
package progress

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Stage int

const (
	StageQueued Stage = iota
	StageDownloading
	StageAnalyzing
	StageFusing
	StageDone
)

func (s Stage) text() string {
	switch s {
	case StageQueued:
		return "⏳ Queued…"
	case StageDownloading:
		return "📥 Retrieving your image…"
	case StageAnalyzing:
		return "🔎 Running forensic analysis…"
	case StageFusing:
		return "🧮 Weighing the evidence…"
	case StageDone:
		return "✅ Done."
	default:
		return "…"
	}
}

type Notifier struct {
	bot *tgbotapi.BotAPI

	mu     sync.Mutex
	last   map[int]Stage // progressMsgID -> last stage posted, for idempotent edits
}

func NewNotifier(bot *tgbotapi.BotAPI) *Notifier {
	return &Notifier{bot: bot, last: make(map[int]Stage)}
}

// Post sends the first progress message for a job and returns its ID so
// subsequent stages can edit it in place.
func (n *Notifier) Post(chatID int64, replyTo int) (int, error) {
	msg := tgbotapi.NewMessage(chatID, StageQueued.text())
	msg.ReplyToMessageID = replyTo
	sent, err := n.bot.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("progress: post: %w", err)
	}
	n.mu.Lock()
	n.last[sent.MessageID] = StageQueued
	n.mu.Unlock()
	return sent.MessageID, nil
}

// Advance edits progressMsgID to reflect stage, skipping the edit entirely
// if that stage (or a later one) was already posted by this Notifier, so a
// job retried in the same process never double-posts. The record is kept in
// memory only; after a process restart the stages are edited again.
func (n *Notifier) Advance(ctx context.Context, chatID int64, progressMsgID int, stage Stage) error {
	n.mu.Lock()
	if last, ok := n.last[progressMsgID]; ok && last >= stage {
		n.mu.Unlock()
		return nil
	}
	n.last[progressMsgID] = stage
	n.mu.Unlock()

	edit := tgbotapi.NewEditMessageText(chatID, progressMsgID, stage.text())
	if _, err := n.bot.Send(edit); err != nil {
		return fmt.Errorf("progress: advance to %v: %w", stage, err)
	}
	return nil
}

// Forget drops the stage-tracking entry for a finished message, bounding
// the in-memory map to in-flight jobs only.
func (n *Notifier) Forget(progressMsgID int) {
	n.mu.Lock()
	delete(n.last, progressMsgID)
	n.mu.Unlock()
}
