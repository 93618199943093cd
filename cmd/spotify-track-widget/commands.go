package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/justestif/go-spotify-track-widget/internal/auth"
	"github.com/justestif/go-spotify-track-widget/internal/config"
	"github.com/justestif/go-spotify-track-widget/internal/db"
	"github.com/justestif/go-spotify-track-widget/internal/logging"
	"github.com/justestif/go-spotify-track-widget/internal/spotify"
	"github.com/justestif/go-spotify-track-widget/internal/web"
)

// loadConfig reads configuration and builds the root logger.
func loadConfig(cmd *cli.Command) (*config.Config, *log.Logger, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(nil, cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openStore connects to the configured database and applies migrations.
func openStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (db.Store, error) {
	store, err := db.Open(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := store.Migrate(ctx, logging.Component(logger, "migrate")); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	logger.Debug("database ready", "max_conns", cfg.Database.MaxConns)
	return store, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := []auth.RefresherOption{
		auth.WithLogger(logging.Component(logger, "refresher")),
	}
	if cfg.Spotify.HTTPTimeout > 0 {
		opts = append(opts, auth.WithHTTPClient(&http.Client{Timeout: cfg.Spotify.HTTPTimeout}))
	}
	refresher := auth.NewRefresher(auth.RefresherConfig{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		TokenURL:     cfg.Spotify.TokenURL,
	}, store, opts...)

	tracks := spotify.NewClient(spotify.ClientConfig{
		BaseURL: cfg.Spotify.APIBaseURL,
		Market:  cfg.Spotify.Market,
		Timeout: cfg.Spotify.HTTPTimeout,
	})

	handlers := web.NewHandlers(store, refresher, tracks, logging.Component(logger, "widget"))

	server, err := web.NewServer(web.ServerConfig{
		Addr:         cfg.Server.Addr,
		APIAccessKey: cfg.Server.APIAccessKey,
		RateLimit:    cfg.Server.WidgetRateLimit,
		RateBurst:    cfg.Server.WidgetRateBurst,
		WriteTimeout: web.WriteTimeoutFor(cfg.Spotify.HTTPTimeout),
	}, handlers, logging.Component(logger, "http"))
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return server.Run(ctx)
}

func migrate(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return config.ErrMissingDatabaseURL
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	store.Close()

	logger.Info("migrations applied")
	return nil
}

func authorize(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	authorizer, err := auth.NewAuthorizer(auth.AuthorizerConfig{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RedirectURL:  cfg.Spotify.RedirectURL,
	}, store, logging.Component(logger, "authorize"))
	if err != nil {
		return fmt.Errorf("creating authorizer: %w", err)
	}

	if _, err := authorizer.Authorize(ctx); err != nil {
		return fmt.Errorf("authorizing: %w", err)
	}
	return nil
}
