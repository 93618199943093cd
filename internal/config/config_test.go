package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/justestif/go-spotify-track-widget/internal/auth"
	"github.com/justestif/go-spotify-track-widget/internal/db"
	"github.com/justestif/go-spotify-track-widget/internal/spotify"
	"github.com/justestif/go-spotify-track-widget/internal/web"
)

var envKeys = []string{
	"DATABASE_URL",
	"DATABASE_MAX_CONNS",
	"SPOTIFY_CLIENT_ID",
	"SPOTIFY_CLIENT_SECRET",
	"SPOTIFY_REDIRECT_URL",
	"SPOTIFY_MARKET",
	"SPOTIFY_API_BASE_URL",
	"SPOTIFY_TOKEN_URL",
	"SPOTIFY_HTTP_TIMEOUT",
	"API_ACCESS_KEY",
	"ADDR",
	"LOG_LEVEL",
	"WIDGET_RATE_LIMIT",
	"WIDGET_RATE_BURST",
}

// unsetEnv removes every config variable for the duration of the test.
func unsetEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	unsetEnv(t)
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.MaxConns != db.DefaultMaxConns {
		t.Errorf("MaxConns = %d, want %d", cfg.Database.MaxConns, db.DefaultMaxConns)
	}
	if cfg.Spotify.RedirectURL != auth.DefaultRedirectURL {
		t.Errorf("RedirectURL = %q, want %q", cfg.Spotify.RedirectURL, auth.DefaultRedirectURL)
	}
	if cfg.Spotify.Market != spotify.DefaultMarket {
		t.Errorf("Market = %q, want %q", cfg.Spotify.Market, spotify.DefaultMarket)
	}
	if cfg.Spotify.HTTPTimeout != 0 {
		t.Errorf("HTTPTimeout = %v, want 0", cfg.Spotify.HTTPTimeout)
	}
	if cfg.Server.Addr != web.DefaultAddr {
		t.Errorf("Addr = %q, want %q", cfg.Server.Addr, web.DefaultAddr)
	}
	if cfg.Server.WidgetRateLimit != 0 {
		t.Errorf("WidgetRateLimit = %v, want 0", cfg.Server.WidgetRateLimit)
	}
	if cfg.Server.WidgetRateBurst != DefaultWidgetBurst {
		t.Errorf("WidgetRateBurst = %d, want %d", cfg.Server.WidgetRateBurst, DefaultWidgetBurst)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestLoad_File(t *testing.T) {
	unsetEnv(t)
	dir := t.TempDir()
	chdir(t, dir)

	path := writeFile(t, dir, "config.toml", `[database]
url = "sqlite://widget.db"
max_conns = 3

[spotify]
client_id = "file-id"
client_secret = "file-secret"
market = "US"
http_timeout = "10s"

[server]
addr = "0.0.0.0:8080"
api_access_key = "file-key"
widget_rate_limit = 2.5
widget_rate_burst = 4

[log]
level = "debug"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.URL != "sqlite://widget.db" || cfg.Database.MaxConns != 3 {
		t.Errorf("Database = %+v, want file values", cfg.Database)
	}
	if cfg.Spotify.ClientID != "file-id" || cfg.Spotify.ClientSecret != "file-secret" {
		t.Errorf("Spotify credentials = %q/%q, want file values", cfg.Spotify.ClientID, cfg.Spotify.ClientSecret)
	}
	if cfg.Spotify.Market != "US" {
		t.Errorf("Market = %q, want US", cfg.Spotify.Market)
	}
	if cfg.Spotify.HTTPTimeout != 10*time.Second {
		t.Errorf("HTTPTimeout = %v, want 10s", cfg.Spotify.HTTPTimeout)
	}
	if cfg.Server.Addr != "0.0.0.0:8080" || cfg.Server.APIAccessKey != "file-key" {
		t.Errorf("Server = %+v, want file values", cfg.Server)
	}
	if cfg.Server.WidgetRateLimit != 2.5 || cfg.Server.WidgetRateBurst != 4 {
		t.Errorf("rate limit = %v/%d, want 2.5/4", cfg.Server.WidgetRateLimit, cfg.Server.WidgetRateBurst)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	// Not in the file, so defaulted
	if cfg.Spotify.RedirectURL != auth.DefaultRedirectURL {
		t.Errorf("RedirectURL = %q, want default", cfg.Spotify.RedirectURL)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	unsetEnv(t)
	dir := t.TempDir()
	chdir(t, dir)

	path := writeFile(t, dir, "config.toml", `[database]
url = "sqlite://file.db"

[spotify]
client_id = "file-id"
market = "US"
`)

	t.Setenv("DATABASE_URL", "postgres://localhost/widget")
	t.Setenv("SPOTIFY_MARKET", "SE")
	t.Setenv("DATABASE_MAX_CONNS", "9")
	t.Setenv("SPOTIFY_HTTP_TIMEOUT", "15")
	t.Setenv("WIDGET_RATE_LIMIT", "0.5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.URL != "postgres://localhost/widget" {
		t.Errorf("Database.URL = %q, want env value", cfg.Database.URL)
	}
	if cfg.Spotify.Market != "SE" {
		t.Errorf("Market = %q, want SE", cfg.Spotify.Market)
	}
	if cfg.Spotify.ClientID != "file-id" {
		t.Errorf("ClientID = %q, want file value", cfg.Spotify.ClientID)
	}
	if cfg.Database.MaxConns != 9 {
		t.Errorf("MaxConns = %d, want 9", cfg.Database.MaxConns)
	}
	if cfg.Spotify.HTTPTimeout != 15*time.Second {
		t.Errorf("HTTPTimeout = %v, want 15s", cfg.Spotify.HTTPTimeout)
	}
	if cfg.Server.WidgetRateLimit != 0.5 {
		t.Errorf("WidgetRateLimit = %v, want 0.5", cfg.Server.WidgetRateLimit)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	unsetEnv(t)
	dir := t.TempDir()
	chdir(t, dir)

	writeFile(t, dir, ".env", "SPOTIFY_CLIENT_ID=dotenv-id\nAPI_ACCESS_KEY=dotenv-key\n")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Spotify.ClientID != "dotenv-id" {
		t.Errorf("ClientID = %q, want dotenv-id", cfg.Spotify.ClientID)
	}
	if cfg.Server.APIAccessKey != "dotenv-key" {
		t.Errorf("APIAccessKey = %q, want dotenv-key", cfg.Server.APIAccessKey)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"max conns", "DATABASE_MAX_CONNS", "five"},
		{"timeout", "SPOTIFY_HTTP_TIMEOUT", "soon"},
		{"rate limit", "WIDGET_RATE_LIMIT", "fast"},
		{"burst", "WIDGET_RATE_BURST", "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unsetEnv(t)
			chdir(t, t.TempDir())
			t.Setenv(tt.key, tt.value)

			if _, err := Load(""); err == nil {
				t.Errorf("Load() with %s=%q error = nil, want error", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	unsetEnv(t)
	chdir(t, t.TempDir())

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Load() error = nil, want error for missing file")
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		Database: DatabaseConfig{URL: "sqlite://widget.db"},
		Spotify:  SpotifyConfig{ClientID: "id", ClientSecret: "secret"},
		Server:   ServerConfig{APIAccessKey: "key"},
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		serve   bool
		wantErr error
	}{
		{"valid", func(c *Config) {}, true, nil},
		{"missing database", func(c *Config) { c.Database.URL = "" }, false, ErrMissingDatabaseURL},
		{"missing client id", func(c *Config) { c.Spotify.ClientID = "" }, false, ErrMissingClientID},
		{"missing client secret", func(c *Config) { c.Spotify.ClientSecret = "" }, false, ErrMissingClientSecret},
		{"missing access key", func(c *Config) { c.Server.APIAccessKey = "" }, true, ErrMissingAccessKey},
		{"access key not needed outside serve", func(c *Config) { c.Server.APIAccessKey = "" }, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			var err error
			if tt.serve {
				err = cfg.ValidateServe()
			} else {
				err = cfg.Validate()
			}

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAll(t *testing.T) {
	var cfg Config

	err := cfg.ValidateServe()

	for _, want := range []error{ErrMissingDatabaseURL, ErrMissingClientID, ErrMissingClientSecret, ErrMissingAccessKey} {
		if !errors.Is(err, want) {
			t.Errorf("ValidateServe() error = %v, missing %v", err, want)
		}
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent to testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
