// ABOUTME: Entry point for the syncwatch client
// ABOUTME: Loads configuration, sets up logging and runs the watch client
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/syncwatch/syncwatch-go/internal/app"
	"github.com/syncwatch/syncwatch-go/internal/config"
	"github.com/syncwatch/syncwatch-go/internal/logging"
	"github.com/syncwatch/syncwatch-go/internal/version"
)

func main() {
	settings, err := config.LoadClient(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// The TUI owns the terminal, so logs go to the file only
	logger, closer, err := logging.New(logging.Options{
		Level:   settings.LogLevel,
		File:    settings.LogFile,
		Console: settings.NoTUI,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closer.Close()

	logger.Info().
		Str("version", version.Version).
		Str("room", settings.Room).
		Str("mode", settings.Mode).
		Msg("starting syncwatch")

	client, err := app.New(app.Options{Settings: settings, Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create client")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := client.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("client stopped")
		stop()
		closer.Close()
		os.Exit(1)
	}
	logger.Info().Msg("client stopped")
}
