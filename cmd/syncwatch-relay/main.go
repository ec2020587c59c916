// ABOUTME: Entry point for the syncwatch relay
// ABOUTME: Serves rooms over websocket with optional Redis backplane and mDNS
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/syncwatch/syncwatch-go/internal/config"
	"github.com/syncwatch/syncwatch-go/internal/logging"
	"github.com/syncwatch/syncwatch-go/internal/relay"
	"github.com/syncwatch/syncwatch-go/internal/version"
)

func main() {
	settings, err := config.LoadRelay(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, closer, err := logging.New(logging.Options{Level: settings.LogLevel, Console: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if settings.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     settings.RedisAddr,
			Password: settings.RedisPassword,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", settings.RedisAddr).Msg("redis unreachable")
		}
		logger.Info().Str("addr", settings.RedisAddr).Msg("redis backplane enabled")
	}

	srv := relay.New(relay.Config{
		Addr:      net.JoinHostPort(settings.Host, strconv.Itoa(settings.Port)),
		Name:      settings.Name,
		Redis:     rdb,
		Advertise: settings.MDNS,
		Logger:    logger,
	})

	logger.Info().
		Str("version", version.Version).
		Str("instance", srv.InstanceID()).
		Msg("starting relay, press Ctrl-C to stop")

	if err := srv.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("relay failed")
		stop()
		closer.Close()
		os.Exit(1)
	}
}
