package flow

import (
	"context"
	"strings"
	"testing"

	"github.com/prim-health/prim-backend/internal/models"
	"github.com/prim-health/prim-backend/internal/users"
)

func TestLeadSubmissionCreatesUserAndCallsLead(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	lead := models.LeadSubmission{
		Email: "carol@example.com",
		Phone: "+1 (234) 555-0199",
		Name:  "Carol from YC",
	}
	if err := engine.HandleLeadSubmission(ctx, lead); err != nil {
		t.Fatalf("HandleLeadSubmission() error = %v", err)
	}

	user, err := deps.directory.FindByPhone(ctx, "2345550199")
	if err != nil {
		t.Fatalf("user was not created: %v", err)
	}
	if !user.IsYC {
		t.Error("YC name must flag the user")
	}
	if user.Name != "Carol" {
		t.Errorf("name = %q, want first token only", user.Name)
	}
	if user.Email != "carol@example.com" {
		t.Errorf("email = %q", user.Email)
	}

	if len(deps.caller.Calls) != 1 {
		t.Fatalf("expected onboarding call, got %d", len(deps.caller.Calls))
	}
	if !strings.Contains(deps.caller.Calls[0].Assistant.FirstMessage, "Hi Carol!") {
		t.Errorf("first message = %q", deps.caller.Calls[0].Assistant.FirstMessage)
	}
	if len(deps.mailer.BetaSignupEmails) != 0 {
		t.Error("lead must not receive the beta email")
	}
}

func TestLeadSubmissionNonLeadGetsBetaEmail(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	lead := models.LeadSubmission{Email: "dave@example.com", Phone: "2345550177", Name: "Dave"}
	if err := engine.HandleLeadSubmission(ctx, lead); err != nil {
		t.Fatalf("HandleLeadSubmission() error = %v", err)
	}

	if len(deps.caller.Calls) != 0 {
		t.Error("non-lead must not trigger a call")
	}
	if len(deps.mailer.BetaSignupEmails) != 1 || deps.mailer.BetaSignupEmails[0].To != "dave@example.com" {
		t.Errorf("expected beta email, got %+v", deps.mailer.BetaSignupEmails)
	}
}

func TestLeadSubmissionUpdatesExistingUser(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()
	if _, err := deps.directory.Create(ctx, "2345550199", users.CreateOptions{}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	lead := models.LeadSubmission{Email: "carol@example.com", Phone: "(234) 555-0199", Name: "Carol from YC"}
	if err := engine.HandleLeadSubmission(ctx, lead); err != nil {
		t.Fatalf("HandleLeadSubmission() error = %v", err)
	}

	user, err := deps.directory.FindByPhone(ctx, "2345550199")
	if err != nil {
		t.Fatalf("FindByPhone() error = %v", err)
	}
	if !user.IsYC || user.Name != "Carol" || user.Email != "carol@example.com" {
		t.Errorf("existing user not updated from lead: %+v", user)
	}

	all, err := deps.store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(all) != 1 {
		t.Errorf("lead for known phone must not create a second user, got %d", len(all))
	}
}

func TestLeadSubmissionCallFailureFallsBackToEmail(t *testing.T) {
	engine, deps := newTestEngine(t)
	deps.caller.Err = models.NewProviderError("vapi", context.DeadlineExceeded)
	ctx := context.Background()

	lead := models.LeadSubmission{Email: "carol@example.com", Phone: "2345550199", Name: "Carol from YC"}
	if err := engine.HandleLeadSubmission(ctx, lead); err != nil {
		t.Fatalf("call failure must be absorbed, got %v", err)
	}

	if len(deps.mailer.MissedCallEmails) != 1 || deps.mailer.MissedCallEmails[0].To != "carol@example.com" {
		t.Errorf("expected missed-call email, got %+v", deps.mailer.MissedCallEmails)
	}
}

func TestLeadSubmissionRequiresEmailAndPhone(t *testing.T) {
	engine, _ := newTestEngine(t)
	err := engine.HandleLeadSubmission(context.Background(), models.LeadSubmission{Name: "Carol"})
	if !models.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestInboundEmailFromLeadStartsCall(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()
	user := seedUser(t, deps, "2345678900")
	flagged := true
	if _, err := deps.directory.Update(ctx, user.ID, models.UserUpdate{IsYC: &flagged}); err != nil {
		t.Fatalf("flag user: %v", err)
	}

	if err := engine.HandleInboundEmail(ctx, "alice@example.com"); err != nil {
		t.Fatalf("HandleInboundEmail() error = %v", err)
	}
	if len(deps.caller.Calls) != 1 {
		t.Fatalf("expected onboarding call, got %d", len(deps.caller.Calls))
	}
	if deps.caller.Calls[0].ToPhone != "2345550123" {
		t.Errorf("call target = %q, want callback phone", deps.caller.Calls[0].ToPhone)
	}
}

func TestInboundEmailFromUnknownSenderIsIgnored(t *testing.T) {
	engine, deps := newTestEngine(t)
	if err := engine.HandleInboundEmail(context.Background(), "stranger@example.com"); err != nil {
		t.Fatalf("unknown sender must be a no-op, got %v", err)
	}
	if len(deps.caller.Calls) != 0 {
		t.Error("unknown sender must not trigger a call")
	}
}

func TestInboundEmailFromNonLeadIsAcknowledged(t *testing.T) {
	engine, deps := newTestEngine(t)
	seedUser(t, deps, "2345678900")

	if err := engine.HandleInboundEmail(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("HandleInboundEmail() error = %v", err)
	}
	if len(deps.caller.Calls) != 0 {
		t.Error("non-lead reply must not trigger a call")
	}
}
