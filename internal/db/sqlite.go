package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite stores the credential in a SQLite database file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens the SQLite database named by databaseURL. Accepted forms are
// "sqlite://path", "sqlite:path", "file:path?opts" and a bare path.
func NewSQLite(ctx context.Context, databaseURL string, maxConns int) (*SQLite, error) {
	dsn := sqliteDSN(databaseURL)
	if dsn == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedURL, databaseURL)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &SQLite{db: db}, nil
}

func sqliteDSN(databaseURL string) string {
	dsn := databaseURL
	for _, prefix := range []string{"sqlite3://", "sqlite://", "sqlite3:", "sqlite:"} {
		if strings.HasPrefix(dsn, prefix) {
			dsn = strings.TrimPrefix(dsn, prefix)
			break
		}
	}
	return dsn
}

// Close closes the underlying database.
func (s *SQLite) Close() {
	s.db.Close()
}

// Migrate applies the embedded SQLite migrations.
func (s *SQLite) Migrate(ctx context.Context, logger *log.Logger) error {
	return migrate(ctx, s.db, dialectSQLite, logger)
}

// GetCredential retrieves the stored credential.
func (s *SQLite) GetCredential(ctx context.Context) (*Credential, error) {
	query := `
		SELECT id, access_token, refresh_token, scope, expires_at, updated_at
		FROM spotify_token
		LIMIT 1
	`
	cred, err := scanCredential(s.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}
	return cred, nil
}

// UpdateCredential overwrites the tokens of the credential with the given ID and returns the new row.
func (s *SQLite) UpdateCredential(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt *time.Time, updatedAt time.Time) (*Credential, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Read back with SELECT rather than RETURNING: go-sqlite3 only decodes
	// DATETIME columns when it can see their declared type.
	query := `
		UPDATE spotify_token
		SET access_token = ?, refresh_token = ?, expires_at = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := tx.ExecContext(ctx, query,
		accessToken,
		refreshToken,
		utcPtr(expiresAt),
		updatedAt.UTC(),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating credential: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("updating credential: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	cred, err := scanCredential(tx.QueryRowContext(ctx, `
		SELECT id, access_token, refresh_token, scope, expires_at, updated_at
		FROM spotify_token
		WHERE id = ?
	`, id))
	if err != nil {
		return nil, fmt.Errorf("reading updated credential: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return cred, nil
}

// SaveCredential removes any stored credential and inserts cred in its place.
// A zero ID is assigned a new UUID.
func (s *SQLite) SaveCredential(ctx context.Context, cred *Credential) error {
	if cred.RefreshToken == "" {
		return ErrEmptyRefreshToken
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM spotify_token`); err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}

	if cred.ID == uuid.Nil {
		cred.ID = uuid.New()
	}
	query := `
		INSERT INTO spotify_token (id, access_token, refresh_token, scope, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		cred.ID,
		cred.AccessToken,
		cred.RefreshToken,
		cred.Scope,
		utcPtr(cred.ExpiresAt),
		utcPtr(cred.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting credential: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func scanCredential(row *sql.Row) (*Credential, error) {
	var cred Credential
	if err := row.Scan(
		&cred.ID,
		&cred.AccessToken,
		&cred.RefreshToken,
		&cred.Scope,
		&cred.ExpiresAt,
		&cred.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &cred, nil
}

// utcPtr normalizes timestamps so SQLite stores them in one zone.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
