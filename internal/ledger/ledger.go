// Package ledger implements the append-only message ledger.
//
// Every conversation turn, inbound or outbound, chat or voice, is appended
// here with a server-assigned timestamp. History reads reconstruct true
// conversation order by ascending timestamp regardless of insertion order.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prim-health/prim-backend/internal/models"
	"github.com/prim-health/prim-backend/internal/store"
)

// DefaultHistoryLimit caps how many recent messages a history read returns.
const DefaultHistoryLimit = 50

// Ledger provides append and ordered-read access to a user's messages.
type Ledger struct {
	st store.Store
}

// NewLedger creates a Ledger backed by the given store.
func NewLedger(st store.Store) *Ledger {
	return &Ledger{st: st}
}

// Append stores a new message turn with the current time as its timestamp and
// returns the stored message with its identity populated.
func (l *Ledger) Append(ctx context.Context, userID, text string, channel models.Channel, sender models.Sender) (*models.Message, error) {
	if !models.IsValidChannel(channel) {
		return nil, models.NewValidationError(fmt.Sprintf("unknown channel %q", channel))
	}
	m := &models.Message{
		UserID:    userID,
		Text:      text,
		Channel:   channel,
		Sender:    sender,
		Timestamp: time.Now().UTC(),
	}
	if err := l.st.AddMessage(ctx, m); err != nil {
		return nil, fmt.Errorf("message append failed: %w", err)
	}
	slog.Debug("Ledger.Append: message stored", "user_id", userID, "channel", channel, "sender", sender)
	return m, nil
}

// History returns the user's most recent messages in ascending-timestamp
// order, oldest first. limit <= 0 applies DefaultHistoryLimit.
//
// Records written before the sender field existed are upgraded on read:
// chat-channel rows were assistant-authored sends, voice-channel rows were
// user transcripts. This is a backward-compatibility shim for legacy data,
// not an ongoing policy.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	msgs, err := l.st.GetMessages(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("history read failed: %w", err)
	}
	// Store returns newest first; reverse into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	for i := range msgs {
		if msgs[i].Sender == "" {
			msgs[i].Sender = inferLegacySender(msgs[i].Channel)
		}
	}
	return msgs, nil
}

func inferLegacySender(c models.Channel) models.Sender {
	if c == models.ChannelVoice {
		return models.SenderUser
	}
	return models.SenderAssistant
}
