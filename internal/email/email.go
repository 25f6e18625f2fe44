// Package email sends transactional email through the Postmark API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prim-health/prim-backend/internal/models"
)

const (
	// DefaultBaseURL is the Postmark API endpoint.
	DefaultBaseURL = "https://api.postmarkapp.com"
	// DefaultSendTimeout bounds a single email send.
	DefaultSendTimeout = 30 * time.Second

	// MissedCallSubject is the subject line for missed-call follow-ups.
	MissedCallSubject = "Missed or Failed Call from Prim"
	// BetaSignupSubject is the subject line for beta-cohort invitations.
	BetaSignupSubject = "Prim's Beta Testing Group"
)

const missedCallTemplate = `Hi %s,

This is Prim. I tried reaching out to you just now but wasn't able to connect. I wanted to make sure everything is okay and see if there's a better time we could chat.

Whenever you're free, just email me back and I'll call you right away.

Here to support you,
Prim
Professional Patient Advocate
`

const betaSignupTemplate = `Hi %s,

I hope you're having a great day! This is Prim, and I wanted to personally thank you for your interest in my healthcare assistance service. I'm currently in the final stages of development, working hard to ensure I can provide the best possible support for your healthcare journey.

I'm reaching out because I'm putting together a select group of early users for my beta testing phase. I'd love to have you join this group if you're interested! As a beta user, you'll be among the first to experience my service and help shape its development.

Would you be interested in joining the beta cohort? Just reply to this email to let me know. No pressure either way - I'm just excited to connect with people who are interested in improving their healthcare experience!

Looking forward to hearing from you!

Warm regards,
Prim
Your Future Healthcare Assistant
`

// Sender sends templated transactional email.
type Sender interface {
	// SendMissedCallEmail sends the missed-call follow-up to the given address.
	SendMissedCallEmail(ctx context.Context, toEmail, name string) error
	// SendBetaSignupEmail sends the beta-cohort invitation to the given address.
	SendBetaSignupEmail(ctx context.Context, toEmail, name string) error
}

// Opts holds configuration options for the Postmark client.
type Opts struct {
	ServerToken string
	From        string
	BaseURL     string
}

// Option defines a configuration option for the Postmark client.
type Option func(*Opts)

// WithServerToken sets the Postmark server token.
func WithServerToken(token string) Option {
	return func(o *Opts) { o.ServerToken = token }
}

// WithFrom sets the sending address.
func WithFrom(from string) Option {
	return func(o *Opts) { o.From = from }
}

// WithBaseURL overrides the Postmark API endpoint, mainly for tests.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// Client sends email through Postmark.
type Client struct {
	httpClient  *http.Client
	serverToken string
	from        string
	baseURL     string
}

// NewClient initializes a Postmark client, falling back to the
// POSTMARK_SERVER_TOKEN and EMAIL_FROM environment variables for unset options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ServerToken == "" {
		cfg.ServerToken = os.Getenv("POSTMARK_SERVER_TOKEN")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("EMAIL_FROM")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("Postmark server token must be provided")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("sending address must be provided")
	}

	return &Client{
		httpClient:  &http.Client{Timeout: DefaultSendTimeout},
		serverToken: cfg.ServerToken,
		from:        cfg.From,
		baseURL:     cfg.BaseURL,
	}, nil
}

// SendMissedCallEmail sends the missed-call follow-up.
func (c *Client) SendMissedCallEmail(ctx context.Context, toEmail, name string) error {
	body := fmt.Sprintf(missedCallTemplate, greetingName(name))
	return c.send(ctx, toEmail, MissedCallSubject, body)
}

// SendBetaSignupEmail sends the beta-cohort invitation.
func (c *Client) SendBetaSignupEmail(ctx context.Context, toEmail, name string) error {
	body := fmt.Sprintf(betaSignupTemplate, greetingName(name))
	return c.send(ctx, toEmail, BetaSignupSubject, body)
}

type postmarkMessage struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	TextBody string `json:"TextBody"`
}

func (c *Client) send(ctx context.Context, to, subject, textBody string) error {
	payload, err := json.Marshal(postmarkMessage{
		From:     c.from,
		To:       to,
		Subject:  subject,
		TextBody: textBody,
	})
	if err != nil {
		return fmt.Errorf("failed to encode email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/email", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build email request: %w", err)
	}
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("email.send: request failed", "to", to, "subject", subject, "error", err)
		return models.NewProviderError("postmark", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		slog.Error("email.send: non-success response", "to", to, "status", resp.StatusCode, "body", string(respBody))
		return models.NewProviderError("postmark", fmt.Errorf("email send returned status %d", resp.StatusCode))
	}

	slog.Info("email.send: sent", "to", to, "subject", subject)
	return nil
}

// greetingName returns the first token of a name, or "there" when empty.
func greetingName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

// MockClient is a mock implementation of Sender for testing.
type MockClient struct {
	// Err, when set, is returned from every send.
	Err error

	// MissedCallEmails records missed-call sends.
	MissedCallEmails []SentEmail
	// BetaSignupEmails records beta-invitation sends.
	BetaSignupEmails []SentEmail
}

// SentEmail records one send.
type SentEmail struct {
	To   string
	Name string
}

// SendMissedCallEmail records the send instead of performing it.
func (m *MockClient) SendMissedCallEmail(ctx context.Context, toEmail, name string) error {
	if m.Err != nil {
		return m.Err
	}
	m.MissedCallEmails = append(m.MissedCallEmails, SentEmail{To: toEmail, Name: name})
	return nil
}

// SendBetaSignupEmail records the send instead of performing it.
func (m *MockClient) SendBetaSignupEmail(ctx context.Context, toEmail, name string) error {
	if m.Err != nil {
		return m.Err
	}
	m.BetaSignupEmails = append(m.BetaSignupEmails, SentEmail{To: toEmail, Name: name})
	return nil
}
