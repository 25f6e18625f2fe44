// Package flow implements the conversation policy engine.
//
// Each inbound chat turn is routed through a fixed branch order: self-message
// guard, new-user welcome, profile completion, rogue-persona diversion, lead
// qualification, then default reply generation. The engine is stateless
// between turns; every decision is recomputed from the current user record
// and recent history.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prim-health/prim-backend/internal/email"
	"github.com/prim-health/prim-backend/internal/genai"
	"github.com/prim-health/prim-backend/internal/ledger"
	"github.com/prim-health/prim-backend/internal/models"
	"github.com/prim-health/prim-backend/internal/phone"
	"github.com/prim-health/prim-backend/internal/users"
	"github.com/prim-health/prim-backend/internal/vapi"
)

// DefaultLeadPhrase qualifies a user as a high-priority lead when it appears
// in their message.
const DefaultLeadPhrase = "from yc"

// Messenger sends outbound chat messages.
type Messenger interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts holds configuration options for the policy engine.
type Opts struct {
	// SelfNumber is the system's own chat number, used to drop provider
	// echoes of our outbound messages.
	SelfNumber string
	// LeadPhrase qualifies a message author as a lead (case-insensitive
	// substring match).
	LeadPhrase string
	// BetaMode switches default reply generation to the beta-waiting persona.
	BetaMode bool
	// ServerURL is the callback URL handed to the voice platform in persona
	// descriptors.
	ServerURL string
}

// Option defines a configuration option for the policy engine.
type Option func(*Opts)

// WithSelfNumber sets the system's own chat number.
func WithSelfNumber(number string) Option {
	return func(o *Opts) { o.SelfNumber = number }
}

// WithLeadPhrase sets the lead-qualifying phrase.
func WithLeadPhrase(phrase string) Option {
	return func(o *Opts) { o.LeadPhrase = phrase }
}

// WithBetaMode enables the beta-waiting persona for default replies.
func WithBetaMode(enabled bool) Option {
	return func(o *Opts) { o.BetaMode = enabled }
}

// WithServerURL sets the voice-platform callback URL.
func WithServerURL(url string) Option {
	return func(o *Opts) { o.ServerURL = url }
}

// Engine is the conversation policy engine.
type Engine struct {
	directory *users.Directory
	ledger    *ledger.Ledger
	ai        genai.ClientInterface
	messenger Messenger
	caller    vapi.Caller
	mailer    email.Sender
	opts      Opts
}

// NewEngine creates a policy engine over the given collaborators.
func NewEngine(directory *users.Directory, led *ledger.Ledger, ai genai.ClientInterface, messenger Messenger, caller vapi.Caller, mailer email.Sender, opts ...Option) *Engine {
	cfg := Opts{LeadPhrase: DefaultLeadPhrase}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{
		directory: directory,
		ledger:    led,
		ai:        ai,
		messenger: messenger,
		caller:    caller,
		mailer:    mailer,
		opts:      cfg,
	}
}

// HandleChatTurn routes one inbound chat turn through the policy branches.
// Provider failures are absorbed after logging; only persistence failures
// propagate to the caller.
func (e *Engine) HandleChatTurn(ctx context.Context, turn models.InboundTurn) error {
	if e.opts.SelfNumber != "" && phone.Equal(turn.From, e.opts.SelfNumber) {
		slog.Info("Engine.HandleChatTurn: ignoring message from own number")
		return nil
	}

	user, err := e.directory.FindByPhone(ctx, turn.From)
	if errors.Is(err, models.ErrNotFound) {
		return e.welcomeNewUser(ctx, turn)
	}
	if err != nil {
		return err
	}

	if _, err := e.ledger.Append(ctx, user.ID, turn.Body, turn.Channel, models.SenderUser); err != nil {
		return err
	}

	if user.Email == "" || user.CallPhone == "" {
		handled, err := e.completeProfile(ctx, user, turn)
		if err != nil || handled {
			return err
		}
	}

	diverted := HasDiversionTrigger(turn.Body)

	if e.leadQualified(user, turn.Body) {
		return e.handleLead(ctx, user)
	}

	return e.respond(ctx, user, diverted)
}

// welcomeNewUser creates a user record for an unknown sender and dispatches
// the canned welcome. The inbound text itself is not recorded; the ledger
// starts with our greeting.
func (e *Engine) welcomeNewUser(ctx context.Context, turn models.InboundTurn) error {
	user, created, err := e.directory.FindOrCreate(ctx, turn.From, users.CreateOptions{Name: turn.ProfileName})
	if err != nil {
		return err
	}
	if created {
		slog.Info("Engine.welcomeNewUser: created user", "user_id", user.ID)
	}

	welcome := fmt.Sprintf(welcomeMessageTemplate, firstName(turn.ProfileName))
	return e.deliver(ctx, user, welcome)
}

// completeProfile extracts missing contact fields from the inbound text and,
// when fields remain missing, nudges the user for them. Returns true when
// this turn is fully handled.
func (e *Engine) completeProfile(ctx context.Context, user *models.User, turn models.InboundTurn) (bool, error) {
	var update models.UserUpdate
	if user.Email == "" {
		if found := ExtractEmail(turn.Body); found != "" {
			update.Email = &found
		}
	}
	if user.CallPhone == "" {
		if found := ExtractPhone(turn.Body); found != "" {
			update.CallPhone = &found
		}
	}
	if !update.IsEmpty() {
		if _, err := e.directory.Update(ctx, user.ID, update); err != nil {
			return false, err
		}
		if update.Email != nil {
			user.Email = *update.Email
		}
		if update.CallPhone != nil {
			user.CallPhone = *update.CallPhone
		}
		slog.Info("Engine.completeProfile: captured contact fields", "user_id", user.ID,
			"email_set", update.Email != nil, "call_phone_set", update.CallPhone != nil)
	}

	var missing []string
	if user.Email == "" {
		missing = append(missing, "email address")
	}
	if user.CallPhone == "" {
		missing = append(missing, "phone number for calls")
	}
	if len(missing) == 0 {
		// profile just became complete, let the normal branches take over
		return false, nil
	}

	history, err := e.ledger.History(ctx, user.ID, ledger.DefaultHistoryLimit)
	if err != nil {
		return false, err
	}
	reply, err := e.ai.GeneratePrompt(ctx, nudgePrompt(firstName(user.Name), missing), formatHistory(history))
	if err != nil {
		slog.Error("Engine.completeProfile: nudge generation failed", "user_id", user.ID, "error", err)
		reply = fallbackReply
	}
	return true, e.deliver(ctx, user, reply)
}

// leadQualified reports whether this turn newly qualifies the user as a lead.
func (e *Engine) leadQualified(user *models.User, body string) bool {
	if user.IsYC || e.opts.LeadPhrase == "" {
		return false
	}
	return strings.Contains(strings.ToLower(body), strings.ToLower(e.opts.LeadPhrase))
}

// handleLead flags the user as a lead and places the onboarding call.
func (e *Engine) handleLead(ctx context.Context, user *models.User) error {
	flagged := true
	if _, err := e.directory.Update(ctx, user.ID, models.UserUpdate{IsYC: &flagged}); err != nil {
		return err
	}
	user.IsYC = true

	if err := e.StartOnboardingCall(ctx, user); err != nil {
		slog.Error("Engine.handleLead: onboarding call failed", "user_id", user.ID, "error", err)
		return e.deliver(ctx, user, "I tried to start a call just now but couldn't get through. Message me here whenever you're ready and I'll try again.")
	}
	return e.deliver(ctx, user, "Great news - I'm calling you right now to get you onboarded. No worries if you miss it, just message me here.")
}

// respond generates and dispatches the next assistant turn.
func (e *Engine) respond(ctx context.Context, user *models.User, diverted bool) error {
	history, err := e.ledger.History(ctx, user.ID, ledger.DefaultHistoryLimit)
	if err != nil {
		return err
	}

	system := HealthcareAssistantPrompt
	if e.opts.BetaMode {
		system = BetaWaitingPrompt
	}
	if diverted {
		system = RogueChatPrompt
	}

	reply, err := e.ai.GeneratePrompt(ctx, system, formatHistory(history))
	if err != nil {
		slog.Error("Engine.respond: reply generation failed", "user_id", user.ID, "error", err)
		reply = fallbackReply
	}
	return e.deliver(ctx, user, reply)
}

// deliver appends an assistant turn to the ledger and then dispatches it.
// The append happens first so a dispatch failure never leaves the ledger
// behind what we intended to say; dispatch failures are logged, not retried.
func (e *Engine) deliver(ctx context.Context, user *models.User, text string) error {
	if _, err := e.ledger.Append(ctx, user.ID, text, models.ChannelWhatsApp, models.SenderAssistant); err != nil {
		return err
	}
	if err := e.messenger.SendMessage(ctx, user.Phone, text); err != nil {
		slog.Error("Engine.deliver: dispatch failed", "user_id", user.ID, "to", user.Phone,
			"text", truncate(text, 80), "error", err)
	}
	return nil
}

// StartOnboardingCall places the outbound onboarding call for a lead,
// preferring their callback number over the chat number.
func (e *Engine) StartOnboardingCall(ctx context.Context, user *models.User) error {
	target := user.CallPhone
	if target == "" {
		target = user.Phone
	}
	_, err := e.caller.StartCall(ctx, target, e.OnboardingAssistant(user.Name))
	return err
}

// OnboardingAssistant builds the onboarding-call persona descriptor with a
// name-personalized opening line.
func (e *Engine) OnboardingAssistant(name string) models.AssistantConfig {
	return e.assistantConfig(OnboardingCallPrompt, fmt.Sprintf(onboardingFirstMessageTemplate, firstName(name)))
}

func (e *Engine) assistantConfig(systemPrompt, firstMessage string) models.AssistantConfig {
	return models.AssistantConfig{
		FirstMessage: firstMessage,
		Model: models.AssistantModel{
			Provider: "openai",
			Model:    "gpt-4.1",
			SystemMessage: []models.AssistantMessage{
				{Role: "system", Content: systemPrompt},
			},
		},
		Voice: models.AssistantVoiceConfig{
			Provider: "openai",
			VoiceID:  "alloy",
		},
		ServerURL: e.opts.ServerURL,
	}
}

// formatHistory renders a chronological history as role-tagged lines ending
// with an open assistant line for the model to complete.
func formatHistory(msgs []models.Message) string {
	var b strings.Builder
	b.WriteString("Here is the conversation history:\n\n")
	for _, m := range msgs {
		b.WriteString(string(m.Sender))
		b.WriteString(": ")
		b.WriteString(m.Text)
		b.WriteByte('\n')
	}
	b.WriteString("\nassistant:")
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
