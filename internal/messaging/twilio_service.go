package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prim-health/prim-backend/internal/models"
	"github.com/prim-health/prim-backend/internal/phone"
	"github.com/prim-health/prim-backend/internal/twiliowhatsapp"
)

// TwilioService implements Service using the Twilio WhatsApp Business API.
// Inbound messages arrive through the API webhook, not the Responses channel.
type TwilioService struct {
	client    twiliowhatsapp.Sender
	responses chan models.InboundTurn
	done      chan struct{}
	mu        sync.RWMutex
	stopped   bool
}

// NewTwilioService creates a TwilioService wrapping the given sender.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{
		client:    client,
		responses: make(chan models.InboundTurn, DefaultChannelBufferSize),
		done:      make(chan struct{}),
	}
}

// ValidateAndCanonicalizeRecipient normalizes a recipient phone number and
// validates that it contains digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phone.Normalize(recipient)
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if canonical != recipient {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start is a no-op; Twilio inbound traffic arrives via webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the service channels.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(s.responses)
	}()

	return nil
}

// SendMessage sends a message via Twilio.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService.SendMessage: validation error", "error", err, "to", to)
		return err
	}
	// Normalized US numbers are stored without the country code; restore it
	// for E.164 delivery.
	if phone.IsValidUS(canonicalTo) {
		canonicalTo = "1" + canonicalTo
	}

	return s.client.SendMessage(ctx, "+"+canonicalTo, body)
}

// Responses returns the inbound turn channel, unused for Twilio.
func (s *TwilioService) Responses() <-chan models.InboundTurn {
	return s.responses
}
