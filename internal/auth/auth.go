// Package auth manages the widget's Spotify credential: the one-time
// authorization-code flow that seeds it and the refresh grant that keeps
// its access token valid.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-track-widget/internal/db"
)

const (
	// DefaultRedirectURL uses explicit IPv4 loopback as required by Spotify for local development.
	// See: https://developer.spotify.com/documentation/web-api/concepts/redirect-uri
	DefaultRedirectURL = "http://127.0.0.1:8080/callback"
	callbackTimeout    = 2 * time.Minute
)

var (
	// ErrAuthTimeout is returned when the OAuth callback is not received in time.
	ErrAuthTimeout = errors.New("authentication timed out waiting for callback")

	// ErrStateMismatch is returned when the OAuth state parameter doesn't match.
	ErrStateMismatch = errors.New("OAuth state mismatch")

	// ErrNoRefreshToken is returned when the authorization response omits a refresh token.
	ErrNoRefreshToken = errors.New("authorization response has no refresh token")
)

// Scopes are the permissions the widget needs.
var Scopes = []string{
	spotifyauth.ScopeUserReadCurrentlyPlaying,
	spotifyauth.ScopeUserReadRecentlyPlayed,
}

// CredentialSaver stores the credential produced by authorization.
type CredentialSaver interface {
	SaveCredential(ctx context.Context, cred *db.Credential) error
}

// AuthorizerConfig holds the OAuth client registration.
type AuthorizerConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Authorizer runs the authorization-code flow and stores the resulting credential.
type Authorizer struct {
	auth        *spotifyauth.Authenticator
	store       CredentialSaver
	redirectURL *url.URL
	logger      *log.Logger
	out         io.Writer
}

// NewAuthorizer creates an Authorizer for the given client registration.
func NewAuthorizer(cfg AuthorizerConfig, store CredentialSaver, logger *log.Logger) (*Authorizer, error) {
	redirect := cfg.RedirectURL
	if redirect == "" {
		redirect = DefaultRedirectURL
	}
	redirectURL, err := url.Parse(redirect)
	if err != nil {
		return nil, fmt.Errorf("parsing redirect URL: %w", err)
	}
	if redirectURL.Host == "" {
		return nil, fmt.Errorf("redirect URL %q has no host", redirect)
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithRedirectURL(redirect),
		spotifyauth.WithScopes(Scopes...),
	)

	return &Authorizer{
		auth:        auth,
		store:       store,
		redirectURL: redirectURL,
		logger:      logger,
		out:         os.Stdout,
	}, nil
}

// Authorize runs the OAuth flow, checks the token against the account
// endpoint, and replaces the stored credential.
func (a *Authorizer) Authorize(ctx context.Context) (*db.Credential, error) {
	token, err := a.runOAuthFlow(ctx)
	if err != nil {
		return nil, err
	}

	client := spotify.New(a.auth.Client(ctx, token), spotify.WithRetry(true))
	user, err := client.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("verifying token: %w", err)
	}

	cred, err := credentialFromToken(token)
	if err != nil {
		return nil, err
	}
	if err := a.store.SaveCredential(ctx, cred); err != nil {
		return nil, fmt.Errorf("saving credential: %w", err)
	}

	a.logger.Info("authorized", "user", user.ID, "name", user.DisplayName, "credential", cred.ID)
	return cred, nil
}

// runOAuthFlow performs the full OAuth authorization code flow.
func (a *Authorizer) runOAuthFlow(ctx context.Context) (*oauth2.Token, error) {
	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}

	// Channel to receive the token from callback
	tokenCh := make(chan *oauth2.Token, 1)
	errCh := make(chan error, 1)

	callbackPath := a.redirectURL.Path
	if callbackPath == "" {
		callbackPath = "/"
	}

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		a.handleCallback(w, r, state, tokenCh, errCh)
	})

	server := &http.Server{
		Addr:              a.redirectURL.Host,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("callback server error: %w", err)
		}
	}()

	fmt.Fprintln(a.out, "\nTo authorize the widget, open this URL in your browser:")
	fmt.Fprintln(a.out, a.auth.AuthURL(state))
	fmt.Fprintln(a.out, "\nWaiting for authorization...")

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}

	select {
	case token := <-tokenCh:
		shutdown()
		return token, nil
	case err := <-errCh:
		shutdown()
		return nil, err
	case <-time.After(callbackTimeout):
		shutdown()
		return nil, ErrAuthTimeout
	case <-ctx.Done():
		shutdown()
		return nil, ctx.Err()
	}
}

// handleCallback processes the OAuth callback from Spotify.
func (a *Authorizer) handleCallback(w http.ResponseWriter, r *http.Request, expectedState string, tokenCh chan<- *oauth2.Token, errCh chan<- error) {
	if r.URL.Query().Get("state") != expectedState {
		http.Error(w, "State mismatch", http.StatusBadRequest)
		sendErr(errCh, ErrStateMismatch)
		return
	}

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		http.Error(w, "Authorization failed: "+errMsg, http.StatusBadRequest)
		sendErr(errCh, fmt.Errorf("spotify auth error: %s", errMsg))
		return
	}

	token, err := a.auth.Token(r.Context(), expectedState, r)
	if err != nil {
		http.Error(w, "Failed to get token", http.StatusInternalServerError)
		sendErr(errCh, fmt.Errorf("exchanging code for token: %w", err))
		return
	}

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>Authorization Successful</title></head>
<body>
<h1>Authorization Successful!</h1>
<p>You can close this window and return to the terminal.</p>
</body>
</html>`)

	select {
	case tokenCh <- token:
	default:
	}
}

// sendErr reports err unless an earlier result is already pending.
func sendErr(errCh chan<- error, err error) {
	select {
	case errCh <- err:
	default:
	}
}

// credentialFromToken converts an authorization token into a storable credential.
func credentialFromToken(token *oauth2.Token) (*db.Credential, error) {
	if token.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	cred := &db.Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if scope, ok := token.Extra("scope").(string); ok && scope != "" {
		cred.Scope = &scope
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		cred.ExpiresAt = &expiry
	}
	return cred, nil
}

// generateState creates a random state string for OAuth.
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
