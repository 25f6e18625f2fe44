// Package store provides storage backends for the Prim backend.
//
// This file implements an SQLite-backed store for users and messages, used in
// single-node deployments and local development.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/prim-health/prim-backend/internal/models"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	slog.Debug("Opening SQLite database connection")
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// EnsureIndexes is a no-op for SQLite; constraints and indexes are declared
// in the embedded migrations.
func (s *SQLiteStore) EnsureIndexes(ctx context.Context) error {
	return nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, phone, call_phone, name, email, is_yc, onboarded, vapi_assistant_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Phone, nilIfEmpty(u.CallPhone), nilIfEmpty(u.Name), nilIfEmpty(u.Email),
		u.IsYC, u.Onboarded, nilIfEmpty(u.VapiAssistantID), u.CreatedAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			slog.Debug("SQLiteStore.CreateUser: duplicate phone", "phone", u.Phone)
			return models.ErrConflict
		}
		slog.Error("SQLiteStore.CreateUser failed", "error", err, "phone", u.Phone)
		return fmt.Errorf("failed to insert user: %w", err)
	}
	slog.Debug("SQLiteStore.CreateUser succeeded", "id", u.ID)
	return nil
}

const sqliteUserColumns = `id, phone, call_phone, name, email, is_yc, onboarded, vapi_assistant_id, created_at`

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE id = ?`, id)
}

func (s *SQLiteStore) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	return s.findUser(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE phone = ?`, phone)
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE email = ?`, email)
}

func (s *SQLiteStore) findUser(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore.findUser failed", "error", err)
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteUserColumns+` FROM users`)
	if err != nil {
		slog.Error("SQLiteStore.ListUsers query failed", "error", err)
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()
	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			slog.Error("SQLiteStore.ListUsers scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore.ListUsers rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	return users, nil
}

func (s *SQLiteStore) UpdateUser(ctx context.Context, id string, update models.UserUpdate) (bool, error) {
	clauses, args := buildUserUpdate(update, func(n int) string { return "?" })
	if len(clauses) == 0 {
		return false, nil
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = ?`, strings.Join(clauses, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Error("SQLiteStore.UpdateUser failed", "error", err, "id", id)
		return false, fmt.Errorf("failed to update user %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	slog.Debug("SQLiteStore.UpdateUser", "id", id, "affected", affected)
	return affected > 0, nil
}

func (s *SQLiteStore) AddMessage(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, user_id, text, source, sender, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.Text, m.Channel, nilIfEmpty(string(m.Sender)), m.Timestamp)
	if err != nil {
		slog.Error("SQLiteStore.AddMessage failed", "error", err, "user_id", m.UserID)
		return fmt.Errorf("failed to insert message for user %s: %w", m.UserID, err)
	}
	slog.Debug("SQLiteStore.AddMessage succeeded", "user_id", m.UserID, "channel", m.Channel)
	return nil
}

func (s *SQLiteStore) GetMessages(ctx context.Context, userID string, limit int) ([]models.Message, error) {
	query := `SELECT id, user_id, text, source, sender, timestamp FROM messages WHERE user_id = ? ORDER BY timestamp DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("SQLiteStore.GetMessages query failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to query messages for user %s: %w", userID, err)
	}
	defer rows.Close()
	var msgs []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			slog.Error("SQLiteStore.GetMessages scan failed", "error", err)
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore.GetMessages rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	slog.Debug("SQLiteStore.GetMessages succeeded", "user_id", userID, "count", len(msgs))
	return msgs, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	} else {
		slog.Debug("SQLite database connection closed successfully")
	}
	return err
}
