package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prim-health/prim-backend/internal/models"
)

// maxLeadFormAge is the freshness window for lead-form submissions. The form
// provider redelivers webhooks; anything older than this is acknowledged
// without processing so redeliveries stay idempotent.
const maxLeadFormAge = 30 * time.Second

// nameFieldLabel identifies the free-text name question on the lead form.
const nameFieldLabel = "Name or nickname"

// Tally field type keys for the consumed fields.
const (
	emailFieldType = "INPUT_EMAIL"
	phoneFieldType = "INPUT_PHONE_NUMBER"
)

type tallyWebhookRequest struct {
	EventID   string    `json:"eventId"`
	EventType string    `json:"eventType"`
	CreatedAt string    `json:"createdAt"`
	Data      tallyData `json:"data"`
}

type tallyData struct {
	FormID string       `json:"formId"`
	Fields []tallyField `json:"fields"`
}

type tallyField struct {
	Key   string          `json:"key"`
	Label string          `json:"label"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

func (f tallyField) stringValue() string {
	var s string
	if err := json.Unmarshal(f.Value, &s); err != nil {
		return ""
	}
	return s
}

// tallyWebhookHandler receives lead-form submissions. It validates the form
// identity and freshness, extracts the email/phone/name triple, and hands
// the lead to the policy engine.
func (s *Server) tallyWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req tallyWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.tallyWebhookHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if len(req.Data.Fields) == 0 {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid webhook format"))
		return
	}

	if s.opts.TallyFormID != "" && req.Data.FormID != s.opts.TallyFormID {
		slog.Warn("Server.tallyWebhookHandler: unexpected form ID", "form_id", req.Data.FormID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid form ID"))
		return
	}

	createdAt, err := time.Parse(time.RFC3339, req.CreatedAt)
	if err != nil {
		slog.Warn("Server.tallyWebhookHandler: invalid timestamp", "created_at", req.CreatedAt, "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid timestamp format"))
		return
	}
	if age := time.Since(createdAt); age > maxLeadFormAge {
		slog.Info("Server.tallyWebhookHandler: stale submission acknowledged without processing", "age", age)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Webhook processed"))
		return
	}

	var lead models.LeadSubmission
	for _, field := range req.Data.Fields {
		switch {
		case field.Type == emailFieldType:
			lead.Email = field.stringValue()
		case field.Type == phoneFieldType:
			lead.Phone = field.stringValue()
		case field.Label == nameFieldLabel:
			lead.Name = field.stringValue()
		}
	}
	if lead.Email == "" || lead.Phone == "" {
		slog.Warn("Server.tallyWebhookHandler: missing required fields",
			"email_set", lead.Email != "", "phone_set", lead.Phone != "")
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required fields (email or phone)"))
		return
	}

	if err := s.engine.HandleLeadSubmission(r.Context(), lead); err != nil {
		slog.Error("Server.tallyWebhookHandler: lead handling failed", "error", err)
		writeEngineError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("User processed successfully"))
}
