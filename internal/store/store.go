// Package store provides storage backends for the Prim backend.
//
// It persists users and message history behind a single Store interface with
// MongoDB, PostgreSQL, SQLite, and in-memory implementations. The backend is
// selected by DSN detection at startup.
package store

import (
	"context"
	"log/slog"
	"strings"

	"github.com/prim-health/prim-backend/internal/models"
)

// Store is the persistence abstraction for users and messages.
//
// CreateUser must enforce uniqueness of the normalized phone at the store
// level and surface models.ErrConflict on a duplicate, so that callers can
// treat the losing side of a find-or-create race as "someone already created
// this user, re-fetch". Lookup methods return models.ErrNotFound when no
// record matches.
type Store interface {
	// EnsureIndexes creates the unique phone index and the message lookup
	// indexes. Called once at boot.
	EnsureIndexes(ctx context.Context) error

	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// ListUsers returns all users. Used by the directory's legacy-format
	// fallback scan, which normalizes phone fields at comparison time.
	ListUsers(ctx context.Context) ([]models.User, error)
	// UpdateUser applies a partial update. It reports false when no user
	// with the given id exists.
	UpdateUser(ctx context.Context, id string, update models.UserUpdate) (bool, error)

	AddMessage(ctx context.Context, m *models.Message) error
	// GetMessages returns up to limit messages for the user, newest first.
	GetMessages(ctx context.Context, userID string, limit int) ([]models.Message, error)

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN      string
	Database string // Mongo database name
}

// Option defines a configuration option for a store backend.
type Option func(*Opts)

// WithDSN sets the backend connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithMongoDatabase sets the MongoDB database name.
func WithMongoDatabase(name string) Option {
	return func(o *Opts) { o.Database = name }
}

// DetectDSNType classifies a DSN string by backend.
// Returns "mongodb", "postgres", "sqlite", or "" for an empty DSN.
func DetectDSNType(dsn string) string {
	switch {
	case dsn == "":
		return ""
	case strings.HasPrefix(dsn, "mongodb://"), strings.HasPrefix(dsn, "mongodb+srv://"):
		return "mongodb"
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		return "postgres"
	default:
		// Assume a SQLite file path
		return "sqlite"
	}
}

// NewStore creates a store backend based on the configured DSN. An empty DSN
// yields the in-memory store.
func NewStore(ctx context.Context, opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	dsnType := DetectDSNType(cfg.DSN)
	slog.Debug("store.NewStore: selecting backend", "dsn_type", dsnType, "dsn_set", cfg.DSN != "")
	switch dsnType {
	case "mongodb":
		return NewMongoStore(ctx, opts...)
	case "postgres":
		return NewPostgresStore(opts...)
	case "sqlite":
		return NewSQLiteStore(opts...)
	default:
		slog.Debug("store.NewStore: no DSN provided, using in-memory store")
		return NewInMemoryStore(), nil
	}
}
