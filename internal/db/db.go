// Package db provides storage for the single Spotify credential used by the widget.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// DefaultMaxConns bounds the connection pool shared by all requests.
const DefaultMaxConns = 5

// Common errors.
var (
	ErrNotFound = errors.New("not found")

	// ErrEmptyRefreshToken is returned when saving a credential without a refresh token.
	ErrEmptyRefreshToken = errors.New("credential has empty refresh token")

	// ErrUnsupportedURL is returned when DATABASE_URL names no known backend.
	ErrUnsupportedURL = errors.New("unsupported database URL")
)

// CredentialStore reads and writes the singleton credential row.
type CredentialStore interface {
	GetCredential(ctx context.Context) (*Credential, error)
	UpdateCredential(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt *time.Time, updatedAt time.Time) (*Credential, error)
	SaveCredential(ctx context.Context, cred *Credential) error
}

// Store is a CredentialStore backed by a database connection pool.
type Store interface {
	CredentialStore
	Migrate(ctx context.Context, logger *log.Logger) error
	Close()
}

// Open connects to the backend named by databaseURL: postgres:// and
// postgresql:// use pgx, anything else is treated as a SQLite path.
func Open(ctx context.Context, databaseURL string, maxConns int) (Store, error) {
	if maxConns <= 0 {
		maxConns = DefaultMaxConns
	}
	switch {
	case databaseURL == "":
		return nil, fmt.Errorf("%w: empty", ErrUnsupportedURL)
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return New(ctx, databaseURL, maxConns)
	default:
		return NewSQLite(ctx, databaseURL, maxConns)
	}
}

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, databaseURL string, maxConns int) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	config.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Credentials returns a CredentialRepository.
func (db *DB) Credentials() *CredentialRepository {
	return &CredentialRepository{pool: db.pool}
}

// Migrate applies the embedded PostgreSQL migrations.
func (db *DB) Migrate(ctx context.Context, logger *log.Logger) error {
	sqlDB := stdlib.OpenDBFromPool(db.pool)
	defer sqlDB.Close()
	return migrate(ctx, sqlDB, dialectPostgres, logger)
}

// GetCredential implements CredentialStore.
func (db *DB) GetCredential(ctx context.Context) (*Credential, error) {
	return db.Credentials().Get(ctx)
}

// UpdateCredential implements CredentialStore.
func (db *DB) UpdateCredential(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt *time.Time, updatedAt time.Time) (*Credential, error) {
	return db.Credentials().Update(ctx, id, accessToken, refreshToken, expiresAt, updatedAt)
}

// SaveCredential implements CredentialStore.
func (db *DB) SaveCredential(ctx context.Context, cred *Credential) error {
	return db.Credentials().Replace(ctx, cred)
}

var (
	_ Store = (*DB)(nil)
	_ Store = (*SQLite)(nil)
)
