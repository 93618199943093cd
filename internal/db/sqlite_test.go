package db

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()

	path := filepath.Join(t.TempDir(), "widget.db")
	store, err := NewSQLite(context.Background(), "sqlite://"+path, DefaultMaxConns)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(store.Close)

	if err := store.Migrate(context.Background(), log.New(io.Discard)); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return store
}

func TestSQLite_MigrateLogsThroughLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widget.db")
	store, err := NewSQLite(context.Background(), path, DefaultMaxConns)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(store.Close)

	var buf bytes.Buffer
	logger := log.New(&buf)

	if err := store.Migrate(context.Background(), logger); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "00001_create_spotify_token.sql") {
		t.Errorf("logger output = %q, want applied migration name", out)
	}
	if !strings.Contains(out, "INFO") {
		t.Errorf("logger output = %q, want INFO level entries", out)
	}
}

func TestSQLite_GetCredentialEmpty(t *testing.T) {
	store := newTestSQLite(t)

	cred, err := store.GetCredential(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetCredential() error = %v, want ErrNotFound", err)
	}
	if cred != nil {
		t.Errorf("GetCredential() = %v, want nil", cred)
	}
}

func TestSQLite_SaveAndGet(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	scope := "user-read-currently-playing user-read-recently-played"
	expiresAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cred := &Credential{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Scope:        &scope,
		ExpiresAt:    &expiresAt,
	}

	if err := store.SaveCredential(ctx, cred); err != nil {
		t.Fatalf("SaveCredential() error = %v", err)
	}
	if cred.ID == uuid.Nil {
		t.Fatal("SaveCredential() did not assign an ID")
	}

	got, err := store.GetCredential(ctx)
	if err != nil {
		t.Fatalf("GetCredential() error = %v", err)
	}

	if got.ID != cred.ID {
		t.Errorf("ID = %v, want %v", got.ID, cred.ID)
	}
	if got.AccessToken != "access-1" {
		t.Errorf("AccessToken = %q, want %q", got.AccessToken, "access-1")
	}
	if got.RefreshToken != "refresh-1" {
		t.Errorf("RefreshToken = %q, want %q", got.RefreshToken, "refresh-1")
	}
	if got.Scope == nil || *got.Scope != scope {
		t.Errorf("Scope = %v, want %q", got.Scope, scope)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, expiresAt)
	}
	if got.UpdatedAt != nil {
		t.Errorf("UpdatedAt = %v, want nil", got.UpdatedAt)
	}
}

func TestSQLite_SaveReplacesExisting(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	first := &Credential{AccessToken: "a1", RefreshToken: "r1"}
	if err := store.SaveCredential(ctx, first); err != nil {
		t.Fatalf("SaveCredential(first) error = %v", err)
	}
	second := &Credential{AccessToken: "a2", RefreshToken: "r2"}
	if err := store.SaveCredential(ctx, second); err != nil {
		t.Fatalf("SaveCredential(second) error = %v", err)
	}

	var count int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM spotify_token`).Scan(&count); err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	if count != 1 {
		t.Errorf("row count = %d, want 1", count)
	}

	got, err := store.GetCredential(ctx)
	if err != nil {
		t.Fatalf("GetCredential() error = %v", err)
	}
	if got.ID != second.ID || got.RefreshToken != "r2" {
		t.Errorf("GetCredential() = %+v, want second credential", got)
	}
}

func TestSQLite_SaveEmptyRefreshToken(t *testing.T) {
	store := newTestSQLite(t)

	err := store.SaveCredential(context.Background(), &Credential{AccessToken: "a"})
	if !errors.Is(err, ErrEmptyRefreshToken) {
		t.Errorf("SaveCredential() error = %v, want ErrEmptyRefreshToken", err)
	}
}

func TestSQLite_UpdateCredential(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	cred := &Credential{AccessToken: "old-access", RefreshToken: "old-refresh"}
	if err := store.SaveCredential(ctx, cred); err != nil {
		t.Fatalf("SaveCredential() error = %v", err)
	}

	expiresAt := time.Date(2025, 1, 1, 1, 0, 0, 0, time.UTC)
	updatedAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := store.UpdateCredential(ctx, cred.ID, "new-access", "new-refresh", &expiresAt, updatedAt)
	if err != nil {
		t.Fatalf("UpdateCredential() error = %v", err)
	}

	if got.AccessToken != "new-access" {
		t.Errorf("AccessToken = %q, want %q", got.AccessToken, "new-access")
	}
	if got.RefreshToken != "new-refresh" {
		t.Errorf("RefreshToken = %q, want %q", got.RefreshToken, "new-refresh")
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, expiresAt)
	}
	if got.UpdatedAt == nil || !got.UpdatedAt.Equal(updatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, updatedAt)
	}

	// Persisted, not just returned
	reloaded, err := store.GetCredential(ctx)
	if err != nil {
		t.Fatalf("GetCredential() error = %v", err)
	}
	if reloaded.AccessToken != "new-access" {
		t.Errorf("reloaded AccessToken = %q, want %q", reloaded.AccessToken, "new-access")
	}
}

func TestSQLite_UpdateCredentialClearsExpiry(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	expiresAt := time.Now().Add(time.Hour)
	cred := &Credential{AccessToken: "a", RefreshToken: "r", ExpiresAt: &expiresAt}
	if err := store.SaveCredential(ctx, cred); err != nil {
		t.Fatalf("SaveCredential() error = %v", err)
	}

	got, err := store.UpdateCredential(ctx, cred.ID, "b", "r", nil, time.Now())
	if err != nil {
		t.Fatalf("UpdateCredential() error = %v", err)
	}
	if got.ExpiresAt != nil {
		t.Errorf("ExpiresAt = %v, want nil", got.ExpiresAt)
	}
}

func TestSQLite_UpdateCredentialUnknownID(t *testing.T) {
	store := newTestSQLite(t)

	_, err := store.UpdateCredential(context.Background(), uuid.New(), "a", "r", nil, time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateCredential() error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sqlite://data/widget.db", "data/widget.db"},
		{"sqlite:widget.db", "widget.db"},
		{"sqlite3://widget.db", "widget.db"},
		{"file:widget.db?cache=shared", "file:widget.db?cache=shared"},
		{"widget.db", "widget.db"},
		{":memory:", ":memory:"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := sqliteDSN(tt.in); got != tt.want {
				t.Errorf("sqliteDSN(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestOpen_EmptyURL(t *testing.T) {
	_, err := Open(context.Background(), "", 0)
	if !errors.Is(err, ErrUnsupportedURL) {
		t.Errorf("Open(\"\") error = %v, want ErrUnsupportedURL", err)
	}
}
