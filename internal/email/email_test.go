package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prim-health/prim-backend/internal/models"
)

func TestGreetingName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"", "there"},
		{"Alice", "Alice"},
		{"Alice from YC", "Alice"},
		{"  Bob  Smith ", "Bob"},
	}
	for _, tt := range tests {
		if got := greetingName(tt.name); got != tt.want {
			t.Errorf("greetingName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSendMissedCallEmail(t *testing.T) {
	var got postmarkMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/email" {
			t.Errorf("path = %q, want /email", r.URL.Path)
		}
		if token := r.Header.Get("X-Postmark-Server-Token"); token != "test-token" {
			t.Errorf("server token = %q", token)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewClient(WithServerToken("test-token"), WithFrom("prim@example.com"), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if err := c.SendMissedCallEmail(context.Background(), "alice@example.com", "Alice Smith"); err != nil {
		t.Fatalf("SendMissedCallEmail() error = %v", err)
	}
	if got.To != "alice@example.com" {
		t.Errorf("to = %q", got.To)
	}
	if got.Subject != MissedCallSubject {
		t.Errorf("subject = %q", got.Subject)
	}
	if !strings.Contains(got.TextBody, "Hi Alice,") {
		t.Errorf("body should greet by first name, got %q", got.TextBody)
	}
}

func TestSendBetaSignupEmailProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := NewClient(WithServerToken("bad-token"), WithFrom("prim@example.com"), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	err = c.SendBetaSignupEmail(context.Background(), "bob@example.com", "")
	if !models.IsProvider(err) {
		t.Errorf("expected provider error, got %v", err)
	}
}

func TestNewClientValidation(t *testing.T) {
	t.Setenv("POSTMARK_SERVER_TOKEN", "")
	t.Setenv("EMAIL_FROM", "")

	if _, err := NewClient(); err == nil {
		t.Fatal("expected error when server token is missing")
	}
	if _, err := NewClient(WithServerToken("token")); err == nil {
		t.Fatal("expected error when from address is missing")
	}
}
