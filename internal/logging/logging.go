// Package logging configures the process-wide structured logger.
//
// The server's stdout may carry the stdio tool transport, so logs always go
// to stderr or to a rotating file, never stdout.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var initOnce sync.Once

// Options controls logger initialization.
type Options struct {
	Level string // debug, info, warn, error
	File  string // rotating log file; empty = stderr
}

// Initialize sets the default slog logger once. Subsequent calls are no-ops.
func Initialize(opts Options) {
	initOnce.Do(func() {
		var w io.Writer = os.Stderr
		if opts.File != "" {
			w = &lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    20, // MB
				MaxBackups: 3,
				MaxAge:     14, // days
				Compress:   true,
			}
		}
		handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(opts.Level)})
		slog.SetDefault(slog.New(handler))
	})
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
