// Package config loads service configuration from an optional TOML file,
// a .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/justestif/go-spotify-track-widget/internal/auth"
	"github.com/justestif/go-spotify-track-widget/internal/db"
	"github.com/justestif/go-spotify-track-widget/internal/spotify"
	"github.com/justestif/go-spotify-track-widget/internal/web"
)

// Defaults owned by this package. The rest come from the packages that use them.
const (
	DefaultLogLevel    = "info"
	DefaultWidgetBurst = 10
	dotEnvFile         = ".env"
)

var (
	ErrMissingDatabaseURL  = errors.New("DATABASE_URL is not set")
	ErrMissingClientID     = errors.New("SPOTIFY_CLIENT_ID is not set")
	ErrMissingClientSecret = errors.New("SPOTIFY_CLIENT_SECRET is not set")
	ErrMissingAccessKey    = errors.New("API_ACCESS_KEY is not set")
)

// Config is the full service configuration.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Spotify  SpotifyConfig  `toml:"spotify"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

// DatabaseConfig selects and sizes the credential store.
type DatabaseConfig struct {
	URL      string `toml:"url"`
	MaxConns int    `toml:"max_conns"`
}

// SpotifyConfig contains the OAuth client and Web API settings.
type SpotifyConfig struct {
	ClientID     string        `toml:"client_id"`
	ClientSecret string        `toml:"client_secret"`
	RedirectURL  string        `toml:"redirect_url"`
	Market       string        `toml:"market"`
	APIBaseURL   string        `toml:"api_base_url"`
	TokenURL     string        `toml:"token_url"`
	HTTPTimeout  time.Duration `toml:"http_timeout"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr         string `toml:"addr"`
	APIAccessKey string `toml:"api_access_key"`
	// WidgetRateLimit is requests per second for the widget route; zero disables limiting.
	WidgetRateLimit float64 `toml:"widget_rate_limit"`
	WidgetRateBurst int     `toml:"widget_rate_burst"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `toml:"level"`
}

// Load builds a Config. Values from .env are added to the environment
// without overriding it, the TOML file at path (if non-empty) is applied,
// then environment variables override the file. Unset fields get defaults.
// Load does not validate; call Validate or ValidateServe.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", dotEnvFile, err)
	}

	var cfg Config
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Spotify.ClientID, "SPOTIFY_CLIENT_ID")
	setString(&c.Spotify.ClientSecret, "SPOTIFY_CLIENT_SECRET")
	setString(&c.Spotify.RedirectURL, "SPOTIFY_REDIRECT_URL")
	setString(&c.Spotify.Market, "SPOTIFY_MARKET")
	setString(&c.Spotify.APIBaseURL, "SPOTIFY_API_BASE_URL")
	setString(&c.Spotify.TokenURL, "SPOTIFY_TOKEN_URL")
	setString(&c.Server.Addr, "ADDR")
	setString(&c.Server.APIAccessKey, "API_ACCESS_KEY")
	setString(&c.Log.Level, "LOG_LEVEL")

	if err := setInt(&c.Database.MaxConns, "DATABASE_MAX_CONNS"); err != nil {
		return err
	}
	if err := setDuration(&c.Spotify.HTTPTimeout, "SPOTIFY_HTTP_TIMEOUT"); err != nil {
		return err
	}
	if err := setFloat(&c.Server.WidgetRateLimit, "WIDGET_RATE_LIMIT"); err != nil {
		return err
	}
	if err := setInt(&c.Server.WidgetRateBurst, "WIDGET_RATE_BURST"); err != nil {
		return err
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = db.DefaultMaxConns
	}
	if c.Spotify.RedirectURL == "" {
		c.Spotify.RedirectURL = auth.DefaultRedirectURL
	}
	if c.Spotify.Market == "" {
		c.Spotify.Market = spotify.DefaultMarket
	}
	if c.Server.Addr == "" {
		c.Server.Addr = web.DefaultAddr
	}
	if c.Server.WidgetRateBurst <= 0 {
		c.Server.WidgetRateBurst = DefaultWidgetBurst
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// Validate checks the values every command needs.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.Spotify.ClientID == "" {
		errs = append(errs, ErrMissingClientID)
	}
	if c.Spotify.ClientSecret == "" {
		errs = append(errs, ErrMissingClientSecret)
	}
	return errors.Join(errs...)
}

// ValidateServe checks Validate plus the values the HTTP server needs.
func (c *Config) ValidateServe() error {
	err := c.Validate()
	if c.Server.APIAccessKey == "" {
		err = errors.Join(err, ErrMissingAccessKey)
	}
	return err
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", key, err)
	}
	*dst = f
	return nil
}

// setDuration accepts Go durations ("5s") or a bare number of seconds.
func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", key, err)
	}
	*dst = d
	return nil
}
