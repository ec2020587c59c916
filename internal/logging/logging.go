// ABOUTME: zerolog setup shared by the client and the relay
// ABOUTME: Console output for terminals, file output while the TUI owns the screen
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Options selects where logs go
type Options struct {
	Level string

	// File receives logs when set
	File string

	// Console also writes human-readable logs to stderr
	Console bool
}

// New builds a logger. The returned closer releases the log file.
func New(opts Options) (*zerolog.Logger, io.Closer, error) {
	lvl := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse log level: %w", err)
		}
		lvl = parsed
	}

	var (
		writers []io.Writer
		closer  io.Closer = nopCloser{}
	)

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("error opening log file: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}
	if opts.Console || len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().
		Timestamp().
		Logger()
	return &logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
