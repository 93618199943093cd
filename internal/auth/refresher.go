package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-track-widget/internal/db"
)

// ErrRefreshFailed is returned when the token endpoint rejects a refresh request.
var ErrRefreshFailed = errors.New("token refresh rejected")

// RefreshError carries the token endpoint's non-2xx reply.
type RefreshError struct {
	StatusCode int
	Body       string
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh rejected with status %d: %s", e.StatusCode, e.Body)
}

func (e *RefreshError) Unwrap() error {
	return ErrRefreshFailed
}

// CredentialUpdater persists a refreshed credential.
type CredentialUpdater interface {
	UpdateCredential(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt *time.Time, updatedAt time.Time) (*db.Credential, error)
}

// RefresherConfig holds the OAuth client used for refresh grants.
type RefresherConfig struct {
	ClientID     string
	ClientSecret string
	// TokenURL defaults to the Spotify accounts token endpoint.
	TokenURL string
}

// Refresher keeps the stored access token usable.
type Refresher struct {
	oauth      *oauth2.Config
	store      CredentialUpdater
	httpClient *http.Client
	now        func() time.Time
	logger     *log.Logger
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithClock sets the time source used for expiry checks and updatedAt.
func WithClock(now func() time.Time) RefresherOption {
	return func(r *Refresher) {
		r.now = now
	}
}

// WithHTTPClient sets the client used to reach the token endpoint.
func WithHTTPClient(c *http.Client) RefresherOption {
	return func(r *Refresher) {
		r.httpClient = c
	}
}

// WithLogger sets the refresher's logger.
func WithLogger(l *log.Logger) RefresherOption {
	return func(r *Refresher) {
		r.logger = l
	}
}

// NewRefresher creates a Refresher that writes refreshed tokens to store.
func NewRefresher(cfg RefresherConfig, store CredentialUpdater, opts ...RefresherOption) *Refresher {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}

	r := &Refresher{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		store:  store,
		now:    time.Now,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Expired reports whether cred must be refreshed at now.
// A credential without a known expiry is always treated as expired.
func Expired(cred *db.Credential, now time.Time) bool {
	return cred.ExpiresAt == nil || !now.Before(*cred.ExpiresAt)
}

// EnsureValid returns cred unchanged while its access token is still valid.
// Otherwise it performs one refresh grant, persists the result and returns
// the updated record. Nothing is written when the refresh fails.
func (r *Refresher) EnsureValid(ctx context.Context, cred *db.Credential) (*db.Credential, error) {
	now := r.now()
	if !Expired(cred, now) {
		return cred, nil
	}

	r.logger.Debug("refreshing access token", "credential", cred.ID)

	tok, err := r.refresh(ctx, cred.RefreshToken)
	if err != nil {
		return nil, err
	}

	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		refreshToken = cred.RefreshToken
	}

	updated, err := r.store.UpdateCredential(ctx, cred.ID, tok.AccessToken, refreshToken, expiresAt(tok, now), now)
	if err != nil {
		return nil, fmt.Errorf("saving refreshed credential: %w", err)
	}

	r.logger.Info("access token refreshed", "credential", cred.ID, "expires_at", updated.ExpiresAt)
	return updated, nil
}

// refresh performs a single refresh_token grant.
func (r *Refresher) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}

	tok, err := r.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return nil, &RefreshError{
				StatusCode: retrieveErr.Response.StatusCode,
				Body:       string(retrieveErr.Body),
			}
		}
		return nil, fmt.Errorf("requesting token refresh: %w", err)
	}
	return tok, nil
}

// expiresAt derives the absolute expiry from expires_in relative to now.
func expiresAt(tok *oauth2.Token, now time.Time) *time.Time {
	switch {
	case tok.ExpiresIn > 0:
		t := now.Add(time.Duration(tok.ExpiresIn) * time.Second)
		return &t
	case !tok.Expiry.IsZero():
		t := tok.Expiry
		return &t
	default:
		return nil
	}
}
