package vapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prim-health/prim-backend/internal/models"
)

func TestNewClientValidation(t *testing.T) {
	t.Setenv("VAPI_API_KEY", "")
	t.Setenv("VAPI_PHONE_NUMBER_ID", "")

	if _, err := NewClient(); err == nil {
		t.Fatal("expected error when API key is missing")
	}
	if _, err := NewClient(WithAPIKey("key")); err == nil {
		t.Fatal("expected error when phone number ID is missing")
	}
	if _, err := NewClient(WithAPIKey("key"), WithPhoneNumberID("pn-1")); err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
}

func TestStartCall(t *testing.T) {
	t.Setenv("VAPI_ONBOARDING_ASSISTANT_ID", "")

	var got callRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/call" {
			t.Errorf("path = %q, want /call", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": "call-123"})
	}))
	defer srv.Close()

	c, err := NewClient(WithAPIKey("test-key"), WithPhoneNumberID("pn-1"), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	assistant := models.AssistantConfig{FirstMessage: "Hi there!"}
	callID, err := c.StartCall(context.Background(), "(234) 567-8900", assistant)
	if err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}
	if callID != "call-123" {
		t.Errorf("callID = %q, want call-123", callID)
	}
	if got.PhoneNumberID != "pn-1" {
		t.Errorf("phoneNumberId = %q, want pn-1", got.PhoneNumberID)
	}
	if got.Customer.Number != "+12345678900" {
		t.Errorf("customer number = %q, want +12345678900", got.Customer.Number)
	}
	if got.Assistant == nil || got.Assistant.FirstMessage != "Hi there!" {
		t.Errorf("assistant = %+v, want transient config with first message", got.Assistant)
	}
	if got.AssistantID != "" {
		t.Errorf("assistantId = %q, want empty when no pre-built assistant is configured", got.AssistantID)
	}
}

func TestStartCallWithPrebuiltAssistant(t *testing.T) {
	var got callRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": "call-456"})
	}))
	defer srv.Close()

	c, err := NewClient(WithAPIKey("test-key"), WithPhoneNumberID("pn-1"),
		WithAssistantID("asst-9"), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if _, err := c.StartCall(context.Background(), "2345678900", models.AssistantConfig{FirstMessage: "ignored"}); err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}
	if got.AssistantID != "asst-9" {
		t.Errorf("assistantId = %q, want asst-9", got.AssistantID)
	}
	if got.Assistant != nil {
		t.Errorf("assistant = %+v, want omitted when a pre-built assistant is configured", got.Assistant)
	}
}

func TestStartCallProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := NewClient(WithAPIKey("bad-key"), WithPhoneNumberID("pn-1"), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = c.StartCall(context.Background(), "2345678900", models.AssistantConfig{})
	if err == nil {
		t.Fatal("expected error for non-success response")
	}
	if !models.IsProvider(err) {
		t.Errorf("expected provider error, got %v", err)
	}
}

func TestStartCallRejectsDigitFreeTarget(t *testing.T) {
	c, err := NewClient(WithAPIKey("key"), WithPhoneNumberID("pn-1"))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	_, err = c.StartCall(context.Background(), "not a number", models.AssistantConfig{})
	if !models.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}
