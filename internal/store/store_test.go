package store

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/prim-health/prim-backend/internal/models"
)

func TestDetectDSNType(t *testing.T) {
	cases := map[string]string{
		"":                                "",
		"mongodb://localhost:27017/prim":  "mongodb",
		"mongodb+srv://cluster0.mongodb":  "mongodb",
		"postgres://u:p@localhost/prim":   "postgres",
		"postgresql://u:p@localhost/prim": "postgres",
		"host=localhost dbname=prim":      "postgres",
		"/var/lib/prim/prim.db":           "sqlite",
	}
	for dsn, want := range cases {
		if got := DetectDSNType(dsn); got != want {
			t.Errorf("DetectDSNType(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func TestInMemoryStoreUserLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	u := &models.User{Phone: "2345678900", CreatedAt: time.Now()}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID == "" {
		t.Fatal("expected generated user ID")
	}

	dup := &models.User{Phone: "2345678900"}
	if err := s.CreateUser(ctx, dup); !errors.Is(err, models.ErrConflict) {
		t.Errorf("expected ErrConflict on duplicate phone, got %v", err)
	}

	got, err := s.GetUserByPhone(ctx, "2345678900")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("lookup returned wrong user: %s != %s", got.ID, u.ID)
	}

	email := "alice@example.com"
	ok, err := s.UpdateUser(ctx, u.ID, models.UserUpdate{Email: &email})
	if err != nil || !ok {
		t.Fatalf("update failed: ok=%v err=%v", ok, err)
	}
	got, _ = s.GetUserByID(ctx, u.ID)
	if got.Email != email {
		t.Errorf("email not updated, got %q", got.Email)
	}

	byEmail, err := s.GetUserByEmail(ctx, email)
	if err != nil || byEmail.ID != u.ID {
		t.Errorf("email lookup failed: %v", err)
	}

	ok, err = s.UpdateUser(ctx, "missing-id", models.UserUpdate{Email: &email})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("update of missing user should report false")
	}

	if _, err := s.GetUserByPhone(ctx, "0000000000"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryStoreMessagesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	base := time.Now()
	for i := 0; i < 3; i++ {
		m := &models.Message{
			UserID:    "u1",
			Text:      string(rune('a' + i)),
			Channel:   models.ChannelWhatsApp,
			Sender:    models.SenderUser,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.AddMessage(ctx, m); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	msgs, err := s.GetMessages(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Text != "c" || msgs[1].Text != "b" {
		t.Errorf("expected newest-first order, got %q then %q", msgs[0].Text, msgs[1].Text)
	}
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	dbPath := t.TempDir() + "/prim.db"
	s, err := NewSQLiteStore(WithDSN(dbPath))
	if err != nil {
		t.Fatalf("failed to open SQLite store: %v", err)
	}
	defer s.Close()

	u := &models.User{Phone: "2345678900", Name: "Alice", CreatedAt: time.Now().UTC()}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.CreateUser(ctx, &models.User{Phone: "2345678900", CreatedAt: time.Now().UTC()}); !errors.Is(err, models.ErrConflict) {
		t.Errorf("expected ErrConflict on duplicate phone, got %v", err)
	}

	got, err := s.GetUserByPhone(ctx, "2345678900")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Alice" {
		t.Errorf("expected name Alice, got %q", got.Name)
	}

	yc := true
	ok, err := s.UpdateUser(ctx, u.ID, models.UserUpdate{IsYC: &yc})
	if err != nil || !ok {
		t.Fatalf("update failed: ok=%v err=%v", ok, err)
	}
	got, _ = s.GetUserByID(ctx, u.ID)
	if !got.IsYC {
		t.Error("is_yc not persisted")
	}

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		err := s.AddMessage(ctx, &models.Message{
			UserID:    u.ID,
			Text:      "turn",
			Channel:   models.ChannelVoice,
			Sender:    models.SenderUser,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	msgs, err := s.GetMessages(ctx, u.ID, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if !msgs[0].Timestamp.After(msgs[2].Timestamp) {
		t.Error("expected newest-first ordering")
	}
}

func TestPostgresStore(t *testing.T) {
	// This test requires a running PostgreSQL instance.
	// Set the DATABASE_URL environment variable for the connection string.
	connStr := getenvOrSkip(t, "DATABASE_URL")
	pgStore, err := NewPostgresStore(WithDSN(connStr))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer pgStore.Close()
	pgStore.db.Exec("DELETE FROM messages")
	pgStore.db.Exec("DELETE FROM users")

	ctx := context.Background()
	u := &models.User{Phone: "2345678900", CreatedAt: time.Now().UTC()}
	if err := pgStore.CreateUser(ctx, u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := pgStore.CreateUser(ctx, &models.User{Phone: "2345678900", CreatedAt: time.Now().UTC()}); !errors.Is(err, models.ErrConflict) {
		t.Errorf("expected ErrConflict on duplicate phone, got %v", err)
	}
}

func getenvOrSkip(t *testing.T, key string) string {
	v := ""
	if val, ok := syscall.Getenv(key); ok {
		v = val
	}
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}
