package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CredentialRepository handles credential database operations.
type CredentialRepository struct {
	pool *pgxpool.Pool
}

// Get retrieves the stored credential.
func (r *CredentialRepository) Get(ctx context.Context) (*Credential, error) {
	query := `
		SELECT id, access_token, refresh_token, scope, expires_at, updated_at
		FROM spotify_token
		LIMIT 1
	`
	var cred Credential
	err := r.pool.QueryRow(ctx, query).Scan(
		&cred.ID,
		&cred.AccessToken,
		&cred.RefreshToken,
		&cred.Scope,
		&cred.ExpiresAt,
		&cred.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}
	return &cred, nil
}

// Update overwrites the tokens of the credential with the given ID and returns the new row.
func (r *CredentialRepository) Update(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt *time.Time, updatedAt time.Time) (*Credential, error) {
	query := `
		UPDATE spotify_token
		SET access_token = $2, refresh_token = $3, expires_at = $4, updated_at = $5
		WHERE id = $1
		RETURNING id, access_token, refresh_token, scope, expires_at, updated_at
	`
	var cred Credential
	err := r.pool.QueryRow(ctx, query, id, accessToken, refreshToken, expiresAt, updatedAt).Scan(
		&cred.ID,
		&cred.AccessToken,
		&cred.RefreshToken,
		&cred.Scope,
		&cred.ExpiresAt,
		&cred.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating credential: %w", err)
	}
	return &cred, nil
}

// Replace removes any stored credential and inserts cred in its place.
// A zero ID is assigned a new UUID.
func (r *CredentialRepository) Replace(ctx context.Context, cred *Credential) error {
	if cred.RefreshToken == "" {
		return ErrEmptyRefreshToken
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM spotify_token`); err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}

	if cred.ID == uuid.Nil {
		cred.ID = uuid.New()
	}
	query := `
		INSERT INTO spotify_token (id, access_token, refresh_token, scope, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = tx.Exec(ctx, query,
		cred.ID,
		cred.AccessToken,
		cred.RefreshToken,
		cred.Scope,
		cred.ExpiresAt,
		cred.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting credential: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
