package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prim-health/prim-backend/internal/models"
)

// whatsappWebhookHandler receives inbound WhatsApp messages from Twilio.
// GET is the provider's one-time subscription verification handshake; POST
// carries a message as form fields.
func (s *Server) whatsappWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}

	switch r.Method {
	case http.MethodGet:
		s.verifyWhatsAppSubscription(w, r)
	case http.MethodPost:
		s.handleInboundWhatsApp(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// verifyWhatsAppSubscription answers the hub.challenge handshake. The
// challenge is echoed back as an integer, matching what the provider sends.
func (s *Server) verifyWhatsAppSubscription(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode != "subscribe" || s.opts.VerifyToken == "" || token != s.opts.VerifyToken {
		slog.Warn("Server.verifyWhatsAppSubscription: verification rejected", "mode", mode)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	value, err := strconv.Atoi(challenge)
	if err != nil {
		slog.Warn("Server.verifyWhatsAppSubscription: non-numeric challenge", "challenge", challenge)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	slog.Info("Server.verifyWhatsAppSubscription: subscription verified")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(strconv.Itoa(value)))
}

// handleInboundWhatsApp normalizes the Twilio form payload into an inbound
// turn and hands it to the policy engine.
func (s *Server) handleInboundWhatsApp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.handleInboundWhatsApp: failed to parse form", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid form payload"))
		return
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")
	profileName := r.FormValue("ProfileName")

	if from == "" || body == "" {
		slog.Warn("Server.handleInboundWhatsApp: missing required fields", "from_set", from != "")
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required fields"))
		return
	}

	slog.Info("Server.handleInboundWhatsApp: message received", "from", from)

	turn := models.InboundTurn{
		From:        from,
		Body:        body,
		ProfileName: profileName,
		Channel:     models.ChannelWhatsApp,
		ReceivedAt:  time.Now().UTC(),
	}
	if err := s.engine.HandleChatTurn(r.Context(), turn); err != nil {
		slog.Error("Server.handleInboundWhatsApp: turn handling failed", "from", from, "error", err)
		writeEngineError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Message processed"))
}
