package flow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prim-health/prim-backend/internal/email"
	"github.com/prim-health/prim-backend/internal/genai"
	"github.com/prim-health/prim-backend/internal/ledger"
	"github.com/prim-health/prim-backend/internal/models"
	"github.com/prim-health/prim-backend/internal/store"
	"github.com/prim-health/prim-backend/internal/twiliowhatsapp"
	"github.com/prim-health/prim-backend/internal/users"
	"github.com/prim-health/prim-backend/internal/vapi"
)

type testDeps struct {
	store     *store.InMemoryStore
	directory *users.Directory
	ledger    *ledger.Ledger
	ai        *genai.MockClient
	messenger *twiliowhatsapp.MockClient
	caller    *vapi.MockClient
	mailer    *email.MockClient
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *testDeps) {
	t.Helper()
	deps := &testDeps{
		store:     store.NewInMemoryStore(),
		ai:        &genai.MockClient{Reply: "generated reply"},
		messenger: twiliowhatsapp.NewMockClient(),
		caller:    &vapi.MockClient{},
		mailer:    &email.MockClient{},
	}
	deps.directory = users.NewDirectory(deps.store)
	deps.ledger = ledger.NewLedger(deps.store)
	engine := NewEngine(deps.directory, deps.ledger, deps.ai, deps.messenger, deps.caller, deps.mailer, opts...)
	return engine, deps
}

func chatTurn(from, body string) models.InboundTurn {
	return models.InboundTurn{
		From:       from,
		Body:       body,
		Channel:    models.ChannelWhatsApp,
		ReceivedAt: time.Now(),
	}
}

// seedUser creates a fully-profiled user so tests can focus on one branch.
func seedUser(t *testing.T, deps *testDeps, rawPhone string) *models.User {
	t.Helper()
	user, err := deps.directory.Create(context.Background(), rawPhone, users.CreateOptions{
		Name:  "Alice Smith",
		Email: "alice@example.com",
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	callPhone := "2345550123"
	if _, err := deps.directory.Update(context.Background(), user.ID, models.UserUpdate{CallPhone: &callPhone}); err != nil {
		t.Fatalf("seed call phone: %v", err)
	}
	user.CallPhone = callPhone
	return user
}

func TestNewUserGetsExactlyOneWelcome(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	turn := chatTurn("whatsapp:+12345678900", "hi there")
	turn.ProfileName = "Dana Lee"
	if err := engine.HandleChatTurn(ctx, turn); err != nil {
		t.Fatalf("HandleChatTurn() error = %v", err)
	}

	user, err := deps.directory.FindByPhone(ctx, "2345678900")
	if err != nil {
		t.Fatalf("user was not created: %v", err)
	}
	if user.Name != "Dana Lee" {
		t.Errorf("name = %q, want Dana Lee", user.Name)
	}

	if len(deps.messenger.SentMessages) != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", len(deps.messenger.SentMessages))
	}
	if !strings.Contains(deps.messenger.SentMessages[0].Body, "Hey Dana!") {
		t.Errorf("welcome = %q, want first-name greeting", deps.messenger.SentMessages[0].Body)
	}

	history, err := deps.ledger.History(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 || history[0].Sender != models.SenderAssistant {
		t.Errorf("expected exactly one assistant turn in ledger, got %+v", history)
	}
	if len(deps.ai.SystemPrompts) != 0 {
		t.Error("welcome branch must not call the LLM")
	}
}

func TestSelfMessageIsDiscarded(t *testing.T) {
	engine, deps := newTestEngine(t, WithSelfNumber("+15551478999"))
	ctx := context.Background()

	if err := engine.HandleChatTurn(ctx, chatTurn("whatsapp:15551478999", "echo of our own send")); err != nil {
		t.Fatalf("HandleChatTurn() error = %v", err)
	}

	if len(deps.messenger.SentMessages) != 0 {
		t.Error("self-message must not produce a dispatch")
	}
	all, err := deps.store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(all) != 0 {
		t.Error("self-message must not create a user")
	}
}

func TestProfileNudgeWhenFieldsMissing(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	if _, err := deps.directory.Create(ctx, "2345678900", users.CreateOptions{Name: "Bob Jones"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	if err := engine.HandleChatTurn(ctx, chatTurn("2345678900", "just saying hello")); err != nil {
		t.Fatalf("HandleChatTurn() error = %v", err)
	}

	if len(deps.ai.SystemPrompts) != 1 {
		t.Fatalf("expected one LLM call, got %d", len(deps.ai.SystemPrompts))
	}
	prompt := deps.ai.SystemPrompts[0]
	if !strings.Contains(prompt, "Bob") {
		t.Errorf("nudge prompt should include first name, got %q", prompt)
	}
	if !strings.Contains(prompt, "email address and phone number for calls") {
		t.Errorf("nudge prompt should name the missing fields, got %q", prompt)
	}
	if len(deps.messenger.SentMessages) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(deps.messenger.SentMessages))
	}
}

func TestProfileExtractionCapturesFields(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	user, err := deps.directory.Create(ctx, "2345678900", users.CreateOptions{Name: "Bob Jones"})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	turn := chatTurn("2345678900", "sure! it's bob@example.com and you can call me at 234-555-0123")
	if err := engine.HandleChatTurn(ctx, turn); err != nil {
		t.Fatalf("HandleChatTurn() error = %v", err)
	}

	updated, err := deps.directory.FindByPhone(ctx, "2345678900")
	if err != nil {
		t.Fatalf("FindByPhone() error = %v", err)
	}
	if updated.Email != "bob@example.com" {
		t.Errorf("email = %q, want bob@example.com", updated.Email)
	}
	if updated.CallPhone != "2345550123" {
		t.Errorf("call phone = %q, want 2345550123", updated.CallPhone)
	}
	_ = user

	// profile complete, so the turn falls through to default generation
	if !deps.ai.SystemPromptContains("[Identity]") {
		t.Errorf("expected default persona after profile completion, got %q", deps.ai.LastSystemPrompt())
	}
}

func TestExtractionDoesNotOverwriteExistingEmail(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	user, err := deps.directory.Create(ctx, "2345678900", users.CreateOptions{Name: "Bob", Email: "bob@example.com"})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	turn := chatTurn("2345678900", "use other@example.com and 234-555-0123 instead")
	if err := engine.HandleChatTurn(ctx, turn); err != nil {
		t.Fatalf("HandleChatTurn() error = %v", err)
	}

	updated, err := deps.directory.FindByPhone(ctx, "2345678900")
	if err != nil {
		t.Fatalf("FindByPhone() error = %v", err)
	}
	if updated.Email != "bob@example.com" {
		t.Errorf("email = %q, existing value must not be overwritten", updated.Email)
	}
	if updated.CallPhone != "2345550123" {
		t.Errorf("call phone = %q, want captured value", updated.CallPhone)
	}
	_ = user
}

func TestDiversionTriggerSwitchesPersona(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()
	seedUser(t, deps, "2345678900")

	if err := engine.HandleChatTurn(ctx, chatTurn("2345678900", "what do you think about pineapple?")); err != nil {
		t.Fatalf("HandleChatTurn() error = %v", err)
	}

	if deps.ai.LastSystemPrompt() != RogueChatPrompt {
		t.Errorf("expected rogue persona, got %q", deps.ai.LastSystemPrompt())
	}
	if len(deps.messenger.SentMessages) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(deps.messenger.SentMessages))
	}

	// diversion does not change persisted state
	user, err := deps.directory.FindByPhone(ctx, "2345678900")
	if err != nil {
		t.Fatalf("FindByPhone() error = %v", err)
	}
	if user.IsYC {
		t.Error("diversion must not mutate user fields")
	}
}

func TestLeadPhraseTriggersOnboardingCall(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()
	seedUser(t, deps, "2345678900")

	if err := engine.HandleChatTurn(ctx, chatTurn("2345678900", "hi! I'm Alice from YC, excited to try this")); err != nil {
		t.Fatalf("HandleChatTurn() error = %v", err)
	}

	user, err := deps.directory.FindByPhone(ctx, "2345678900")
	if err != nil {
		t.Fatalf("FindByPhone() error = %v", err)
	}
	if !user.IsYC {
		t.Error("lead phrase must flag the user")
	}

	if len(deps.caller.Calls) != 1 {
		t.Fatalf("expected one outbound call, got %d", len(deps.caller.Calls))
	}
	call := deps.caller.Calls[0]
	if call.ToPhone != "2345550123" {
		t.Errorf("call target = %q, want the callback phone", call.ToPhone)
	}
	if !strings.Contains(call.Assistant.FirstMessage, "Hi Alice!") {
		t.Errorf("first message = %q, want name personalization", call.Assistant.FirstMessage)
	}
	if len(call.Assistant.Model.SystemMessage) == 0 || call.Assistant.Model.SystemMessage[0].Content != OnboardingCallPrompt {
		t.Error("call must use the onboarding persona")
	}

	if len(deps.messenger.SentMessages) != 1 || !strings.Contains(deps.messenger.SentMessages[0].Body, "calling you right now") {
		t.Errorf("expected call acknowledgment, got %+v", deps.messenger.SentMessages)
	}
	if len(deps.ai.SystemPrompts) != 0 {
		t.Error("lead branch must not call the LLM")
	}
}

func TestLeadCallFailureSendsRetryPrompt(t *testing.T) {
	engine, deps := newTestEngine(t)
	deps.caller.Err = models.NewProviderError("vapi", context.DeadlineExceeded)
	ctx := context.Background()
	seedUser(t, deps, "2345678900")

	if err := engine.HandleChatTurn(ctx, chatTurn("2345678900", "I'm from YC")); err != nil {
		t.Fatalf("HandleChatTurn() error = %v", err)
	}

	if len(deps.messenger.SentMessages) != 1 || !strings.Contains(deps.messenger.SentMessages[0].Body, "couldn't get through") {
		t.Errorf("expected retry prompt, got %+v", deps.messenger.SentMessages)
	}
}

func TestLeadPhraseIgnoredWhenAlreadyFlagged(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()
	user := seedUser(t, deps, "2345678900")
	flagged := true
	if _, err := deps.directory.Update(ctx, user.ID, models.UserUpdate{IsYC: &flagged}); err != nil {
		t.Fatalf("flag user: %v", err)
	}

	if err := engine.HandleChatTurn(ctx, chatTurn("2345678900", "still from YC over here")); err != nil {
		t.Fatalf("HandleChatTurn() error = %v", err)
	}

	if len(deps.caller.Calls) != 0 {
		t.Error("already-flagged user must not trigger another call")
	}
	if len(deps.ai.SystemPrompts) != 1 {
		t.Error("turn should fall through to default generation")
	}
}

func TestDefaultBranchUsesBetaPersonaInBetaMode(t *testing.T) {
	engine, deps := newTestEngine(t, WithBetaMode(true))
	ctx := context.Background()
	seedUser(t, deps, "2345678900")

	if err := engine.HandleChatTurn(ctx, chatTurn("2345678900", "can you book me a checkup?")); err != nil {
		t.Fatalf("HandleChatTurn() error = %v", err)
	}

	if deps.ai.LastSystemPrompt() != BetaWaitingPrompt {
		t.Errorf("expected beta persona, got %q", deps.ai.LastSystemPrompt())
	}
}

func TestDefaultBranchAppendsBeforeDispatchAndFormatsHistory(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()
	user := seedUser(t, deps, "2345678900")

	if _, err := deps.ledger.Append(ctx, user.ID, "Hi! How can I help?", models.ChannelWhatsApp, models.SenderAssistant); err != nil {
		t.Fatalf("seed history: %v", err)
	}
	time.Sleep(2 * time.Millisecond)

	if err := engine.HandleChatTurn(ctx, chatTurn("2345678900", "explain my last bill")); err != nil {
		t.Fatalf("HandleChatTurn() error = %v", err)
	}

	if len(deps.ai.UserPrompts) != 1 {
		t.Fatalf("expected one LLM call, got %d", len(deps.ai.UserPrompts))
	}
	prompt := deps.ai.UserPrompts[0]
	assistantIdx := strings.Index(prompt, "assistant: Hi! How can I help?")
	userIdx := strings.Index(prompt, "user: explain my last bill")
	if assistantIdx == -1 || userIdx == -1 || assistantIdx > userIdx {
		t.Errorf("history prompt not oldest-first role-tagged lines:\n%s", prompt)
	}

	history, err := deps.ledger.History(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	last := history[len(history)-1]
	if last.Sender != models.SenderAssistant || last.Text != "generated reply" {
		t.Errorf("generated reply not appended to ledger, got %+v", last)
	}
}

func TestGenerationFailureSendsFallback(t *testing.T) {
	engine, deps := newTestEngine(t)
	deps.ai.Err = models.NewProviderError("openai", context.DeadlineExceeded)
	ctx := context.Background()
	seedUser(t, deps, "2345678900")

	if err := engine.HandleChatTurn(ctx, chatTurn("2345678900", "hello?")); err != nil {
		t.Fatalf("provider failure must be absorbed, got %v", err)
	}
	if len(deps.messenger.SentMessages) != 1 || deps.messenger.SentMessages[0].Body != fallbackReply {
		t.Errorf("expected fallback reply, got %+v", deps.messenger.SentMessages)
	}
}

func TestDispatchFailureKeepsLedgerConsistent(t *testing.T) {
	engine, deps := newTestEngine(t)
	deps.messenger.Err = models.NewProviderError("twilio", context.DeadlineExceeded)
	ctx := context.Background()
	user := seedUser(t, deps, "2345678900")

	if err := engine.HandleChatTurn(ctx, chatTurn("2345678900", "hello")); err != nil {
		t.Fatalf("dispatch failure must be absorbed, got %v", err)
	}

	history, err := deps.ledger.History(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	last := history[len(history)-1]
	if last.Sender != models.SenderAssistant || last.Text != "generated reply" {
		t.Errorf("intended reply must be in the ledger despite dispatch failure, got %+v", last)
	}
}
