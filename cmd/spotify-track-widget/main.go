// Command spotify-track-widget serves the Spotify "now playing" widget API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "spotify-track-widget",
		Usage: "Serve the track a Spotify account is playing, for a now-playing widget",
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			authorizeCommand(),
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		stop()
		log.Fatal("application error", "err", err)
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to an optional TOML configuration file",
		Sources: cli.EnvVars("WIDGET_CONFIG"),
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the widget HTTP API",
		Flags:  []cli.Flag{configFlag()},
		Action: serve,
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:   "migrate",
		Usage:  "Apply database migrations and exit",
		Flags:  []cli.Flag{configFlag()},
		Action: migrate,
	}
}

func authorizeCommand() *cli.Command {
	return &cli.Command{
		Name:   "authorize",
		Usage:  "Authorize the widget's Spotify account and store its credential",
		Flags:  []cli.Flag{configFlag()},
		Action: authorize,
	}
}
