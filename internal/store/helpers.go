package store

import (
	"database/sql"
	"fmt"

	"github.com/prim-health/prim-backend/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanUser scans a User from a row in column order
// (id, phone, call_phone, name, email, is_yc, onboarded, vapi_assistant_id, created_at).
func scanUser(row rowScanner) (models.User, error) {
	var u models.User
	var callPhone, name, email, assistantID sql.NullString
	err := row.Scan(&u.ID, &u.Phone, &callPhone, &name, &email, &u.IsYC, &u.Onboarded, &assistantID, &u.CreatedAt)
	if err != nil {
		return u, err
	}
	u.CallPhone = callPhone.String
	u.Name = name.String
	u.Email = email.String
	u.VapiAssistantID = assistantID.String
	return u, nil
}

// scanMessage scans a Message from a row in column order
// (id, user_id, text, source, sender, timestamp).
func scanMessage(row rowScanner) (models.Message, error) {
	var m models.Message
	var sender sql.NullString
	err := row.Scan(&m.ID, &m.UserID, &m.Text, &m.Channel, &sender, &m.Timestamp)
	if err != nil {
		return m, fmt.Errorf("scan message failed: %w", err)
	}
	m.Sender = models.Sender(sender.String)
	return m, nil
}

// buildUserUpdate turns a partial UserUpdate into SET clauses and args.
// placeholder renders the positional parameter for the backend's SQL dialect.
func buildUserUpdate(update models.UserUpdate, placeholder func(n int) string) ([]string, []interface{}) {
	var clauses []string
	var args []interface{}
	add := func(column string, value interface{}) {
		clauses = append(clauses, fmt.Sprintf("%s = %s", column, placeholder(len(args)+1)))
		args = append(args, value)
	}
	if update.Name != nil {
		add("name", *update.Name)
	}
	if update.Email != nil {
		add("email", *update.Email)
	}
	if update.CallPhone != nil {
		add("call_phone", *update.CallPhone)
	}
	if update.IsYC != nil {
		add("is_yc", *update.IsYC)
	}
	if update.Onboarded != nil {
		add("onboarded", *update.Onboarded)
	}
	if update.VapiAssistantID != nil {
		add("vapi_assistant_id", *update.VapiAssistantID)
	}
	return clauses, args
}
