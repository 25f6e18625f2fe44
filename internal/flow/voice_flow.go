package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prim-health/prim-backend/internal/ledger"
	"github.com/prim-health/prim-backend/internal/models"
)

const (
	assistantLinePrefix = "AI: "
	userLinePrefix      = "User: "

	// recentDiversionWindow is how many trailing history messages are checked
	// for the easter-egg trigger when configuring a live call.
	recentDiversionWindow = 5
)

// TranscriptTurn is one attributed turn recovered from a raw call transcript.
type TranscriptTurn struct {
	Sender models.Sender
	Text   string
}

// SplitTranscript splits a raw call transcript into attributed turns. Lines
// prefixed "AI: " are assistant turns and lines prefixed "User: " are user
// turns; unprefixed lines continue the preceding turn.
func SplitTranscript(transcript string) []TranscriptTurn {
	var turns []TranscriptTurn
	for _, line := range strings.Split(transcript, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, assistantLinePrefix):
			turns = append(turns, TranscriptTurn{Sender: models.SenderAssistant, Text: strings.TrimPrefix(line, assistantLinePrefix)})
		case strings.HasPrefix(line, userLinePrefix):
			turns = append(turns, TranscriptTurn{Sender: models.SenderUser, Text: strings.TrimPrefix(line, userLinePrefix)})
		case len(turns) > 0:
			turns[len(turns)-1].Text += "\n" + line
		default:
			// transcript starts without attribution; call it the assistant's,
			// since our side always opens the call
			turns = append(turns, TranscriptTurn{Sender: models.SenderAssistant, Text: line})
		}
	}
	return turns
}

// HandleEndOfCallReport records a finished call's transcript as voice-channel
// turns and sends the missed-call follow-up when the call ended abnormally.
func (e *Engine) HandleEndOfCallReport(ctx context.Context, report models.EndOfCallReport) error {
	user, err := e.directory.FindByPhone(ctx, report.CustomerNumber)
	if errors.Is(err, models.ErrNotFound) {
		slog.Info("Engine.HandleEndOfCallReport: no user for caller, dropping report",
			"call_id", report.CallID, "number", report.CustomerNumber)
		return nil
	}
	if err != nil {
		return err
	}

	for _, turn := range SplitTranscript(report.Transcript) {
		if _, err := e.ledger.Append(ctx, user.ID, turn.Text, models.ChannelVoice, turn.Sender); err != nil {
			return err
		}
	}

	if callEndedAbnormally(report) {
		slog.Info("Engine.HandleEndOfCallReport: call ended abnormally",
			"call_id", report.CallID, "user_id", user.ID, "ended_reason", report.EndedReason)
		if user.Email == "" {
			slog.Warn("Engine.HandleEndOfCallReport: no email on file for missed-call follow-up", "user_id", user.ID)
			return nil
		}
		if err := e.mailer.SendMissedCallEmail(ctx, user.Email, user.Name); err != nil {
			slog.Error("Engine.HandleEndOfCallReport: missed-call email failed", "user_id", user.ID, "error", err)
		}
	}
	return nil
}

// callEndedAbnormally reports whether an end-of-call report indicates the
// user was never reached.
func callEndedAbnormally(report models.EndOfCallReport) bool {
	if report.StartedAt == "" || report.EndedAt == "" {
		return true
	}
	reason := strings.ToLower(report.EndedReason)
	for _, marker := range []string{"error", "busy", "no-answer", "no answer", "failed", "voicemail"} {
		if strings.Contains(reason, marker) {
			return true
		}
	}
	return false
}

// HandleAssistantRequest answers the voice platform's synchronous "which
// persona should take this live call" query. Unknown callers get the
// signup-redirect persona; known callers get the rogue persona when their
// recent history triggered the easter egg, else the default voice persona.
func (e *Engine) HandleAssistantRequest(ctx context.Context, callerNumber string) (models.AssistantConfig, error) {
	user, err := e.directory.FindByPhone(ctx, callerNumber)
	if errors.Is(err, models.ErrNotFound) {
		slog.Info("Engine.HandleAssistantRequest: unknown caller, using signup persona", "number", callerNumber)
		return e.assistantConfig(SignupRedirectPrompt, signupFirstMessage), nil
	}
	if err != nil {
		return models.AssistantConfig{}, err
	}

	history, err := e.ledger.History(ctx, user.ID, ledger.DefaultHistoryLimit)
	if err != nil {
		return models.AssistantConfig{}, err
	}
	if historyHasRecentDiversion(history) {
		return e.assistantConfig(RogueVoicePrompt, rogueFirstMessage), nil
	}
	return e.assistantConfig(VoiceAssistantPrompt, fmt.Sprintf(voiceFirstMessageTemplate, firstName(user.Name))), nil
}

// historyHasRecentDiversion checks the trailing user-authored turns for the
// easter-egg trigger.
func historyHasRecentDiversion(history []models.Message) bool {
	start := len(history) - recentDiversionWindow
	if start < 0 {
		start = 0
	}
	for _, m := range history[start:] {
		if m.Sender == models.SenderUser && HasDiversionTrigger(m.Text) {
			return true
		}
	}
	return false
}
