package twiliowhatsapp

import (
	"context"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	err := mock.SendMessage(ctx, "12345", "Hello Test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.SentMessages))
	}

	if mock.SentMessages[0].Body != "Hello Test" {
		t.Errorf("expected body %q, got %q", "Hello Test", mock.SentMessages[0].Body)
	}
}

func TestNewClientValidation(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_WHATSAPP_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Fatal("expected error when credentials are missing")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("token")); err == nil {
		t.Fatal("expected error when from number is missing")
	}

	c, err := NewClient(WithAccountSID("AC123"), WithAuthToken("token"), WithFromWhats("+15550001111"))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if c.fromWhats != "whatsapp:+15550001111" {
		t.Errorf("fromWhats = %q, want whatsapp prefix applied", c.fromWhats)
	}
}
