// Package messaging provides a pluggable chat delivery abstraction.
//
// Two implementations exist: TwilioService, which sends through the Twilio
// WhatsApp Business API and receives inbound messages via webhook, and
// WhatsAppService, which connects directly over whatsmeow and surfaces
// inbound messages on the Responses channel.
package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/prim-health/prim-backend/internal/models"
)

const (
	// DefaultChannelBufferSize is the buffer size for the inbound turn channel.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds non-blocking channel sends.
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service is stopped")

// Service defines a pluggable chat delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient identifier for this transport.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g. event polling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Responses returns a channel of inbound turns received directly by the
	// transport. Webhook-driven transports leave this channel idle.
	Responses() <-chan models.InboundTurn
}
