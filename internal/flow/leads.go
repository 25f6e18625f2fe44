package flow

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/prim-health/prim-backend/internal/models"
	"github.com/prim-health/prim-backend/internal/users"
)

// HandleLeadSubmission processes a lead-capture form submission: creates or
// updates the user, then either places the onboarding call (recognized leads)
// or sends the beta invitation. Call and email failures are absorbed after
// logging so the form provider is never asked to redeliver.
func (e *Engine) HandleLeadSubmission(ctx context.Context, lead models.LeadSubmission) error {
	if lead.Email == "" || lead.Phone == "" {
		return models.NewValidationError("lead submission missing email or phone")
	}

	isLead := strings.Contains(strings.ToLower(lead.Name), "yc")
	name := firstName(lead.Name)
	if name == "there" {
		name = ""
	}

	user, err := e.directory.FindByPhone(ctx, lead.Phone)
	switch {
	case errors.Is(err, models.ErrNotFound):
		user, _, err = e.directory.FindOrCreate(ctx, lead.Phone, users.CreateOptions{
			Name:  name,
			Email: lead.Email,
			IsYC:  isLead,
		})
		if err != nil {
			return err
		}
		slog.Info("Engine.HandleLeadSubmission: created user from lead form", "user_id", user.ID, "is_yc", isLead)
	case err != nil:
		return err
	default:
		update := models.UserUpdate{IsYC: &isLead}
		if name != "" {
			update.Name = &name
		}
		if user.Email == "" {
			update.Email = &lead.Email
		}
		if _, err := e.directory.Update(ctx, user.ID, update); err != nil {
			return err
		}
		user.IsYC = isLead
		if name != "" {
			user.Name = name
		}
		if user.Email == "" {
			user.Email = lead.Email
		}
	}

	if isLead {
		if err := e.StartOnboardingCall(ctx, user); err != nil {
			slog.Error("Engine.HandleLeadSubmission: onboarding call failed", "user_id", user.ID, "error", err)
			if mailErr := e.mailer.SendMissedCallEmail(ctx, user.Email, user.Name); mailErr != nil {
				slog.Error("Engine.HandleLeadSubmission: missed-call email failed", "user_id", user.ID, "error", mailErr)
			}
		}
		return nil
	}

	if err := e.mailer.SendBetaSignupEmail(ctx, user.Email, user.Name); err != nil {
		slog.Error("Engine.HandleLeadSubmission: beta signup email failed", "user_id", user.ID, "error", err)
	}
	return nil
}

// HandleInboundEmail processes an inbound email reply. Recognized leads get
// the onboarding call; anyone else is acknowledged without action.
func (e *Engine) HandleInboundEmail(ctx context.Context, fromEmail string) error {
	user, err := e.directory.FindByEmail(ctx, fromEmail)
	if errors.Is(err, models.ErrNotFound) {
		slog.Info("Engine.HandleInboundEmail: email from unknown sender, ignoring", "from", fromEmail)
		return nil
	}
	if err != nil {
		return err
	}

	if !user.IsYC {
		slog.Info("Engine.HandleInboundEmail: non-lead replied to signup email", "user_id", user.ID)
		return nil
	}

	if err := e.StartOnboardingCall(ctx, user); err != nil {
		slog.Error("Engine.HandleInboundEmail: onboarding call failed", "user_id", user.ID, "error", err)
		if mailErr := e.mailer.SendMissedCallEmail(ctx, user.Email, user.Name); mailErr != nil {
			slog.Error("Engine.HandleInboundEmail: missed-call email failed", "user_id", user.ID, "error", mailErr)
		}
	}
	return nil
}
