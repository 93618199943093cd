package db

import (
	"time"

	"github.com/google/uuid"
)

// Credential is the stored OAuth token pair for the widget's Spotify account.
type Credential struct {
	ID           uuid.UUID
	AccessToken  string
	RefreshToken string
	Scope        *string    // nullable
	ExpiresAt    *time.Time // nullable - nil means refresh before use
	UpdatedAt    *time.Time // nullable
}
