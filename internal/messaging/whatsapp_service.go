package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prim-health/prim-backend/internal/models"
	"github.com/prim-health/prim-backend/internal/phone"
	"github.com/prim-health/prim-backend/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// WhatsAppService implements Service using the whatsmeow-based whatsapp
// client. Inbound messages are surfaced on the Responses channel.
type WhatsAppService struct {
	client    whatsapp.Sender
	waClient  *whatsapp.Client // underlying client for event handling, nil for mocks
	responses chan models.InboundTurn
	done      chan struct{}
}

// NewWhatsAppService creates a WhatsAppService wrapping the given sender.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	service := &WhatsAppService{
		client:    client,
		responses: make(chan models.InboundTurn, DefaultChannelBufferSize),
		done:      make(chan struct{}),
	}

	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}

	return service
}

// ValidateAndCanonicalizeRecipient normalizes a recipient phone number.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phone.Normalize(recipient)
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	return canonical, nil
}

// Start registers the whatsmeow event handler when a full client is available.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil {
		slog.Debug("WhatsAppService.Start: no full client available, skipping event handling")
		return nil
	}
	go s.handleEvents(ctx)
	return nil
}

// Stop stops background processing.
func (s *WhatsAppService) Stop() error {
	close(s.done)
	close(s.responses)
	slog.Info("WhatsAppService stopped")
	return nil
}

// SendMessage sends a message through the whatsmeow client. whatsmeow
// addresses recipients by bare digits including the country code.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService.SendMessage: validation error", "error", err, "to", to)
		return err
	}
	if phone.IsValidUS(canonicalTo) {
		canonicalTo = "1" + canonicalTo
	}
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		slog.Error("WhatsAppService.SendMessage: send failed", "error", err, "to", to)
		return err
	}
	return nil
}

// Responses returns the channel of inbound turns.
func (s *WhatsAppService) Responses() <-chan models.InboundTurn {
	return s.responses
}

// handleEvents forwards whatsmeow message events into the responses channel
// until the context is cancelled.
func (s *WhatsAppService) handleEvents(ctx context.Context) {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Error("WhatsAppService.handleEvents: no client available")
		return
	}

	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		if msg, ok := evt.(*events.Message); ok {
			s.handleIncomingMessage(msg)
		}
	})

	<-ctx.Done()
	slog.Debug("WhatsAppService.handleEvents: stopping, context cancelled")
}

// handleIncomingMessage converts a whatsmeow message event into an inbound turn.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil {
		return
	}

	var messageText string
	if evt.Message.Conversation != nil {
		messageText = *evt.Message.Conversation
	} else if evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil {
		messageText = *evt.Message.ExtendedTextMessage.Text
	} else {
		// Skip non-text messages (images, audio, etc.)
		slog.Debug("WhatsAppService ignoring non-text message", "from", evt.Info.Sender.String())
		return
	}

	turn := models.InboundTurn{
		From:        evt.Info.Sender.User,
		Body:        messageText,
		ProfileName: evt.Info.PushName,
		Channel:     models.ChannelWhatsApp,
		ReceivedAt:  evt.Info.Timestamp,
	}

	select {
	case s.responses <- turn:
		slog.Debug("WhatsAppService incoming message forwarded", "from", turn.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService responses channel blocked, dropping message", "from", turn.From)
	}
}
