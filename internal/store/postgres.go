// Package store provides storage backends for the Prim backend.
//
// This file implements a PostgreSQL-backed store for users and messages.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "embed"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/prim-health/prim-backend/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute

	// pqUniqueViolation is the PostgreSQL error code for unique constraint violations
	pqUniqueViolation = "23505"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	slog.Debug("Opening Postgres database connection")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// EnsureIndexes is a no-op for Postgres; constraints and indexes are declared
// in the embedded migrations.
func (s *PostgresStore) EnsureIndexes(ctx context.Context) error {
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, phone, call_phone, name, email, is_yc, onboarded, vapi_assistant_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Phone, nilIfEmpty(u.CallPhone), nilIfEmpty(u.Name), nilIfEmpty(u.Email),
		u.IsYC, u.Onboarded, nilIfEmpty(u.VapiAssistantID), u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			slog.Debug("PostgresStore.CreateUser: duplicate phone", "phone", u.Phone)
			return models.ErrConflict
		}
		slog.Error("PostgresStore.CreateUser failed", "error", err, "phone", u.Phone)
		return fmt.Errorf("failed to insert user: %w", err)
	}
	slog.Debug("PostgresStore.CreateUser succeeded", "id", u.ID)
	return nil
}

const postgresUserColumns = `id, phone, call_phone, name, email, is_yc, onboarded, vapi_assistant_id, created_at`

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, `SELECT `+postgresUserColumns+` FROM users WHERE id = $1`, id)
}

func (s *PostgresStore) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	return s.findUser(ctx, `SELECT `+postgresUserColumns+` FROM users WHERE phone = $1`, phone)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, `SELECT `+postgresUserColumns+` FROM users WHERE email = $1`, email)
}

func (s *PostgresStore) findUser(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		slog.Error("PostgresStore.findUser failed", "error", err)
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+postgresUserColumns+` FROM users`)
	if err != nil {
		slog.Error("PostgresStore.ListUsers query failed", "error", err)
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()
	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			slog.Error("PostgresStore.ListUsers scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore.ListUsers rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	return users, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, id string, update models.UserUpdate) (bool, error) {
	clauses, args := buildUserUpdate(update, func(n int) string { return fmt.Sprintf("$%d", n) })
	if len(clauses) == 0 {
		return false, nil
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d`, strings.Join(clauses, ", "), len(args))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Error("PostgresStore.UpdateUser failed", "error", err, "id", id)
		return false, fmt.Errorf("failed to update user %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	slog.Debug("PostgresStore.UpdateUser", "id", id, "affected", affected)
	return affected > 0, nil
}

func (s *PostgresStore) AddMessage(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, user_id, text, source, sender, timestamp) VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.UserID, m.Text, m.Channel, nilIfEmpty(string(m.Sender)), m.Timestamp)
	if err != nil {
		slog.Error("PostgresStore.AddMessage failed", "error", err, "user_id", m.UserID)
		return fmt.Errorf("failed to insert message for user %s: %w", m.UserID, err)
	}
	slog.Debug("PostgresStore.AddMessage succeeded", "user_id", m.UserID, "channel", m.Channel)
	return nil
}

func (s *PostgresStore) GetMessages(ctx context.Context, userID string, limit int) ([]models.Message, error) {
	query := `SELECT id, user_id, text, source, sender, timestamp FROM messages WHERE user_id = $1 ORDER BY timestamp DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("PostgresStore.GetMessages query failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to query messages for user %s: %w", userID, err)
	}
	defer rows.Close()
	var msgs []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			slog.Error("PostgresStore.GetMessages scan failed", "error", err)
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore.GetMessages rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	slog.Debug("PostgresStore.GetMessages succeeded", "user_id", userID, "count", len(msgs))
	return msgs, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	} else {
		slog.Debug("PostgreSQL database connection closed successfully")
	}
	return err
}
