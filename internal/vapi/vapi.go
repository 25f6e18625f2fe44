// Package vapi wraps the VAPI voice-call platform API for outbound calls.
package vapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prim-health/prim-backend/internal/models"
	"github.com/prim-health/prim-backend/internal/phone"
)

const (
	// DefaultBaseURL is the VAPI API endpoint.
	DefaultBaseURL = "https://api.vapi.ai"
	// DefaultCallTimeout bounds the outbound call-start request.
	DefaultCallTimeout = 60 * time.Second
)

// Caller starts outbound voice calls.
type Caller interface {
	// StartCall places an outbound call to the given phone number using the
	// provided transient assistant configuration. Returns the call ID.
	StartCall(ctx context.Context, toPhone string, assistant models.AssistantConfig) (string, error)
}

// Opts holds configuration options for the VAPI client.
type Opts struct {
	APIKey        string
	PhoneNumberID string
	AssistantID   string
	BaseURL       string
}

// Option defines a configuration option for the VAPI client.
type Option func(*Opts)

// WithAPIKey sets the VAPI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithPhoneNumberID sets the VAPI phone number ID used as the calling number.
func WithPhoneNumberID(id string) Option {
	return func(o *Opts) { o.PhoneNumberID = id }
}

// WithAssistantID sets a pre-built VAPI assistant to use for outbound calls
// instead of the transient assistant configuration.
func WithAssistantID(id string) Option {
	return func(o *Opts) { o.AssistantID = id }
}

// WithBaseURL overrides the VAPI API endpoint, mainly for tests.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// Client calls the VAPI REST API.
type Client struct {
	httpClient    *http.Client
	apiKey        string
	phoneNumberID string
	assistantID   string
	baseURL       string
}

// NewClient initializes a VAPI client, falling back to the VAPI_API_KEY,
// VAPI_PHONE_NUMBER_ID and VAPI_ONBOARDING_ASSISTANT_ID environment variables
// for unset options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("VAPI_API_KEY")
	}
	if cfg.PhoneNumberID == "" {
		cfg.PhoneNumberID = os.Getenv("VAPI_PHONE_NUMBER_ID")
	}
	if cfg.AssistantID == "" {
		cfg.AssistantID = os.Getenv("VAPI_ONBOARDING_ASSISTANT_ID")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("VAPI API key must be provided")
	}
	if cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("VAPI phone number ID must be provided")
	}

	return &Client{
		httpClient:    &http.Client{Timeout: DefaultCallTimeout},
		apiKey:        cfg.APIKey,
		phoneNumberID: cfg.PhoneNumberID,
		assistantID:   cfg.AssistantID,
		baseURL:       cfg.BaseURL,
	}, nil
}

type callRequest struct {
	PhoneNumberID string                  `json:"phoneNumberId"`
	Customer      callCustomer            `json:"customer"`
	AssistantID   string                  `json:"assistantId,omitempty"`
	Assistant     *models.AssistantConfig `json:"assistant,omitempty"`
}

type callCustomer struct {
	Number string `json:"number"`
}

type callResponse struct {
	ID string `json:"id"`
}

// StartCall places an outbound call with a transient assistant and returns
// the platform call ID.
func (c *Client) StartCall(ctx context.Context, toPhone string, assistant models.AssistantConfig) (string, error) {
	number := phone.Normalize(toPhone)
	if number == "" {
		return "", models.NewValidationError(fmt.Sprintf("no digits found in call target %q", toPhone))
	}
	if phone.IsValidUS(number) {
		number = "1" + number
	}

	payload := callRequest{
		PhoneNumberID: c.phoneNumberID,
		Customer:      callCustomer{Number: "+" + number},
	}
	// A configured pre-built assistant wins over the transient configuration.
	if c.assistantID != "" {
		payload.AssistantID = c.assistantID
	} else {
		payload.Assistant = &assistant
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode call request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/call", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build call request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("vapi.StartCall: request failed", "to", toPhone, "error", err)
		return "", models.NewProviderError("vapi", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("vapi.StartCall: non-success response", "to", toPhone, "status", resp.StatusCode, "body", string(respBody))
		return "", models.NewProviderError("vapi", fmt.Errorf("call start returned status %d", resp.StatusCode))
	}

	var call callResponse
	if err := json.Unmarshal(respBody, &call); err != nil {
		return "", models.NewProviderError("vapi", fmt.Errorf("failed to decode call response: %w", err))
	}

	slog.Info("vapi.StartCall: call initiated", "to", toPhone, "call_id", call.ID)
	return call.ID, nil
}

// MockClient is a mock implementation of Caller for testing.
type MockClient struct {
	// CallID is returned from StartCall when Err is nil.
	CallID string
	// Err, when set, is returned from StartCall.
	Err error

	// Calls records each StartCall invocation.
	Calls []StartedCall
}

// StartedCall records one StartCall invocation.
type StartedCall struct {
	ToPhone   string
	Assistant models.AssistantConfig
}

// StartCall records the call instead of placing it.
func (m *MockClient) StartCall(ctx context.Context, toPhone string, assistant models.AssistantConfig) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	m.Calls = append(m.Calls, StartedCall{ToPhone: toPhone, Assistant: assistant})
	if m.CallID != "" {
		return m.CallID, nil
	}
	return "mock-call-id", nil
}
