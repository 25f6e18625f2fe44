// Package api exposes the webhook endpoints driving the Prim backend.
//
// Every endpoint is a provider callback: WhatsApp messages from Twilio,
// call events from the voice platform, lead-form submissions from Tally,
// and inbound email from Postmark. There are no background workers; these
// callbacks are the only thing that makes the system do work.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prim-health/prim-backend/internal/flow"
	"github.com/prim-health/prim-backend/internal/models"
)

// DefaultAddr is the default listen address for the API server.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr        string // listen address
	VerifyToken string // WhatsApp GET verification token
	TallyFormID string // expected lead-form identifier
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithVerifyToken sets the WhatsApp webhook verification token.
func WithVerifyToken(token string) Option {
	return func(o *Opts) { o.VerifyToken = token }
}

// WithTallyFormID sets the expected lead-form identifier.
func WithTallyFormID(id string) Option {
	return func(o *Opts) { o.TallyFormID = id }
}

// Server wires the webhook handlers to the policy engine.
type Server struct {
	engine *flow.Engine
	opts   Opts
}

// NewServer creates an API server around the given policy engine.
func NewServer(engine *flow.Engine, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{engine: engine, opts: cfg}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/whatsapp-webhook", s.whatsappWebhookHandler)
	mux.HandleFunc("/api/v1/vapi-webhook", s.vapiWebhookHandler)
	mux.HandleFunc("/api/v1/tally-webhook", s.tallyWebhookHandler)
	mux.HandleFunc("/api/v1/postmark-webhook", s.postmarkWebhookHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/", s.rootHandler)
	return mux
}

// Run serves the API until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Prim backend is running"))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("healthy"))
}
