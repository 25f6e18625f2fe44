package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prim-health/prim-backend/internal/models"
)

// vapiWebhookRequest is the envelope the voice platform posts for every call
// event; the message type discriminates what the rest of the body means.
type vapiWebhookRequest struct {
	Message vapiWebhookMessage `json:"message"`
}

type vapiWebhookMessage struct {
	Type        string        `json:"type"`
	EndedReason string        `json:"endedReason"`
	StartedAt   string        `json:"startedAt"`
	EndedAt     string        `json:"endedAt"`
	Transcript  string        `json:"transcript"`
	Artifact    *vapiArtifact `json:"artifact"`
	Call        *vapiCall     `json:"call"`
	Customer    *vapiCustomer `json:"customer"`
}

type vapiArtifact struct {
	Transcript string `json:"transcript"`
}

type vapiCall struct {
	ID       string        `json:"id"`
	Customer *vapiCustomer `json:"customer"`
}

type vapiCustomer struct {
	Number string `json:"number"`
}

// customerNumber digs the caller's number out of whichever envelope field
// the platform populated for this event type.
func (m vapiWebhookMessage) customerNumber() string {
	if m.Customer != nil && m.Customer.Number != "" {
		return m.Customer.Number
	}
	if m.Call != nil && m.Call.Customer != nil {
		return m.Call.Customer.Number
	}
	return ""
}

func (m vapiWebhookMessage) callID() string {
	if m.Call != nil {
		return m.Call.ID
	}
	return ""
}

func (m vapiWebhookMessage) transcript() string {
	if m.Transcript != "" {
		return m.Transcript
	}
	if m.Artifact != nil {
		return m.Artifact.Transcript
	}
	return ""
}

// vapiWebhookHandler receives call events from the voice platform. The
// assistant-request event is answered synchronously with a persona
// descriptor; the platform is waiting on it to start the call.
func (s *Server) vapiWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req vapiWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.vapiWebhookHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	msg := req.Message
	slog.Info("Server.vapiWebhookHandler: event received", "type", msg.Type, "call_id", msg.callID())

	switch msg.Type {
	case "end-of-call-report":
		if msg.customerNumber() == "" {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing customer number"))
			return
		}
		report := models.EndOfCallReport{
			CallID:         msg.callID(),
			CustomerNumber: msg.customerNumber(),
			Transcript:     msg.transcript(),
			EndedReason:    msg.EndedReason,
			StartedAt:      msg.StartedAt,
			EndedAt:        msg.EndedAt,
		}
		if err := s.engine.HandleEndOfCallReport(r.Context(), report); err != nil {
			slog.Error("Server.vapiWebhookHandler: end-of-call handling failed", "call_id", report.CallID, "error", err)
			writeEngineError(w, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Report processed"))

	case "assistant-request":
		number := msg.customerNumber()
		if number == "" {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing customer number"))
			return
		}
		cfg, err := s.engine.HandleAssistantRequest(r.Context(), number)
		if err != nil {
			slog.Error("Server.vapiWebhookHandler: assistant request failed", "error", err)
			writeEngineError(w, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, map[string]models.AssistantConfig{"assistant": cfg})

	case "status-update", "call-started", "speech-update", "transcript":
		// informational events, acknowledged without processing
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Event acknowledged"))

	default:
		slog.Debug("Server.vapiWebhookHandler: ignoring event type", "type", msg.Type)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Event ignored"))
	}
}
