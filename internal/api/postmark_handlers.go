package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prim-health/prim-backend/internal/models"
)

type postmarkInboundRequest struct {
	From     string `json:"From"`
	Subject  string `json:"Subject"`
	Date     string `json:"Date"`
	TextBody string `json:"TextBody"`
}

// postmarkWebhookHandler receives inbound email. Recognized leads replying
// to our outreach get the onboarding call; everyone else is acknowledged.
func (s *Server) postmarkWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req postmarkInboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.postmarkWebhookHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.From == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid email format"))
		return
	}

	slog.Info("Server.postmarkWebhookHandler: inbound email", "from", req.From, "subject", req.Subject)

	if err := s.engine.HandleInboundEmail(r.Context(), req.From); err != nil {
		slog.Error("Server.postmarkWebhookHandler: email handling failed", "from", req.From, "error", err)
		writeEngineError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Email processed"))
}
