package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/justestif/go-spotify-track-widget/internal/db"
	"github.com/justestif/go-spotify-track-widget/internal/spotify"
)

// CredentialGetter loads the stored Spotify credential.
type CredentialGetter interface {
	GetCredential(ctx context.Context) (*db.Credential, error)
}

// CredentialRefresher returns a credential whose access token is usable.
type CredentialRefresher interface {
	EnsureValid(ctx context.Context, cred *db.Credential) (*db.Credential, error)
}

// TrackFetcher calls the Spotify player endpoints.
type TrackFetcher interface {
	CurrentlyPlaying(ctx context.Context, accessToken string) (*spotify.Response, error)
	RecentlyPlayed(ctx context.Context, accessToken string) (*spotify.Response, error)
}

// Handlers contains HTTP handlers for the widget API.
type Handlers struct {
	store     CredentialGetter
	refresher CredentialRefresher
	tracks    TrackFetcher
	logger    *log.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store CredentialGetter, refresher CredentialRefresher, tracks TrackFetcher, logger *log.Logger) *Handlers {
	return &Handlers{
		store:     store,
		refresher: refresher,
		tracks:    tracks,
		logger:    logger,
	}
}

// TrackWidget reports the current or most recent track (GET /api/spotify/track-widget).
func (h *Handlers) TrackWidget(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accessToken, err := h.accessToken(ctx)
	if err != nil {
		h.logger.Error("failed to get valid access token", "err", err)
		writeError(w, http.StatusUnauthorized, CodeAuthFailed, "Failed to authenticate with Spotify")
		return
	}

	resp, err := h.tracks.CurrentlyPlaying(ctx, accessToken)
	if err != nil {
		h.logger.Error("failed to fetch currently playing track", "err", err)
		writeError(w, http.StatusInternalServerError, CodeAPIError, "Failed to connect to Spotify API")
		return
	}

	switch resp.StatusCode {
	case http.StatusOK:
		v, err := spotify.DecodeJSON(resp.Body)
		if err != nil {
			h.logger.Error("failed to parse Spotify response", "err", err)
			writeError(w, http.StatusInternalServerError, CodeParseFailure, "Failed to parse Spotify response")
			return
		}

		details := spotify.ParseCurrentlyPlaying(v)
		if details.Item != nil {
			writeJSON(w, http.StatusOK, details)
			return
		}
		// Episode or unsupported item type
	case http.StatusNoContent:
		// Nothing playing
	default:
		h.logger.Error("unexpected response status", "status", resp.StatusCode, "body", string(resp.Body))
		writeError(w, http.StatusInternalServerError, CodeUnexpectedResponse, "Unexpected response from Spotify API")
		return
	}

	writeJSON(w, http.StatusOK, h.recentlyPlayed(ctx, accessToken))
}

// Health reports liveness (GET /healthz).
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// accessToken loads the credential and refreshes it if needed.
func (h *Handlers) accessToken(ctx context.Context) (string, error) {
	cred, err := h.store.GetCredential(ctx)
	if err != nil {
		return "", fmt.Errorf("loading credential: %w", err)
	}

	cred, err = h.refresher.EnsureValid(ctx, cred)
	if err != nil {
		return "", fmt.Errorf("refreshing credential: %w", err)
	}
	return cred.AccessToken, nil
}

// recentlyPlayed returns the last played track, or empty details on any failure.
func (h *Handlers) recentlyPlayed(ctx context.Context, accessToken string) spotify.TrackDetails {
	resp, err := h.tracks.RecentlyPlayed(ctx, accessToken)
	if err != nil {
		h.logger.Warn("failed to fetch recently played track", "err", err)
		return spotify.TrackDetails{}
	}
	if resp.StatusCode != http.StatusOK {
		h.logger.Warn("unexpected recently played status", "status", resp.StatusCode, "body", string(resp.Body))
		return spotify.TrackDetails{}
	}

	v, err := spotify.DecodeJSON(resp.Body)
	if err != nil {
		h.logger.Warn("failed to parse recently played response", "err", err)
		return spotify.TrackDetails{}
	}
	return spotify.ParseRecentlyPlayed(v)
}
