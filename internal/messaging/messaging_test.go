package messaging

import (
	"context"
	"testing"

	"github.com/prim-health/prim-backend/internal/twiliowhatsapp"
	"github.com/prim-health/prim-backend/internal/whatsapp"
)

func TestTwilioServiceCanonicalizesRecipient(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())

	got, err := svc.ValidateAndCanonicalizeRecipient("whatsapp:+1 (234) 567-8900")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "2345678900" {
		t.Errorf("canonical = %q, want 2345678900", got)
	}

	if _, err := svc.ValidateAndCanonicalizeRecipient(""); err == nil {
		t.Error("expected error for empty recipient")
	}
	if _, err := svc.ValidateAndCanonicalizeRecipient("no digits here"); err == nil {
		t.Error("expected error for digit-free recipient")
	}
}

func TestTwilioServiceSendRestoresCountryCode(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)

	if err := svc.SendMessage(context.Background(), "2345678900", "hi"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(mock.SentMessages))
	}
	if mock.SentMessages[0].To != "+12345678900" {
		t.Errorf("to = %q, want +12345678900", mock.SentMessages[0].To)
	}
}

func TestTwilioServiceStopRejectsSends(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := svc.SendMessage(context.Background(), "2345678900", "hi"); err != ErrServiceStopped {
		t.Errorf("SendMessage() after Stop = %v, want ErrServiceStopped", err)
	}
	// Stop is idempotent
	if err := svc.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestWhatsAppServiceSend(t *testing.T) {
	mock := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mock)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := svc.SendMessage(context.Background(), "+1 (234) 567-8900", "hello"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(mock.SentMessages))
	}
	if mock.SentMessages[0].To != "12345678900" {
		t.Errorf("to = %q, want 12345678900", mock.SentMessages[0].To)
	}
}
