// Package spotify fetches playback state from the Spotify Web API and
// normalizes it into the widget's TrackDetails shape.
package spotify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultBaseURL is the Spotify Web API root.
	DefaultBaseURL = "https://api.spotify.com/v1"

	// DefaultMarket is the market passed to player endpoints.
	DefaultMarket = "IN"

	currentlyPlayingPath = "/me/player/currently-playing"
	recentlyPlayedPath   = "/me/player/recently-played"
)

// Response is an upstream reply with its body already read.
type Response struct {
	StatusCode int
	Body       []byte
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL string
	Market  string
	// Timeout bounds each request. Zero means no client-side timeout.
	Timeout time.Duration
}

// Client calls the Spotify player endpoints.
// It does not retry, cache or handle rate limits: one round trip per call.
type Client struct {
	httpClient *http.Client
	baseURL    string
	market     string
}

// NewClient creates a new player API client from the provided configuration.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	market := cfg.Market
	if market == "" {
		market = DefaultMarket
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    baseURL,
		market:     market,
	}
}

// CurrentlyPlaying requests the user's current playback item.
// Any HTTP status is returned in the Response; err is set only when the
// request could not be completed.
func (c *Client) CurrentlyPlaying(ctx context.Context, accessToken string) (*Response, error) {
	params := url.Values{
		"market": {c.market},
	}
	return c.get(ctx, currentlyPlayingPath, params, accessToken)
}

// RecentlyPlayed requests the single most recent entry of the user's play history.
func (c *Client) RecentlyPlayed(ctx context.Context, accessToken string) (*Response, error) {
	params := url.Values{
		"limit":  {"1"},
		"market": {c.market},
	}
	return c.get(ctx, recentlyPlayedPath, params, accessToken)
}

// get performs one authenticated GET and reads the whole body.
func (c *Client) get(ctx context.Context, path string, params url.Values, accessToken string) (*Response, error) {
	reqURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}
