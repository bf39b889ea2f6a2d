package logger

import (
	"io"
	"log/slog"
	"time"
)

// replaceAttrs renders the custom TRACE level name and converts timestamps to tz
func replaceAttrs(tz *time.Location, dropTime bool) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}

		switch a.Key {
		case slog.TimeKey:
			if dropTime {
				return slog.Attr{}
			}
			if t, ok := a.Value.Any().(time.Time); ok {
				return slog.String(slog.TimeKey, t.In(tz).Format(time.RFC3339))
			}
		case slog.LevelKey:
			if level, ok := a.Value.Any().(slog.Level); ok && level <= traceLevelValue {
				return slog.String(slog.LevelKey, "TRACE")
			}
		}
		return a
	}
}

// newTextHandler creates the console handler. Timestamps are left to the
// process supervisor (journald, docker) that collects stdout.
func newTextHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttrs(tz, true),
	})
}

// newJSONHandler creates the file handler with RFC3339 timestamps in tz
func newJSONHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttrs(tz, false),
	})
}

// NewSlogLogger creates a standalone JSON Logger writing to w.
// A nil writer discards output and a nil timezone means UTC.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if w == nil {
		w = io.Discard
	}
	if tz == nil {
		tz = time.UTC
	}

	slogLevel := parseLogLevel(string(level))
	return &moduleLogger{
		logger: slog.New(newJSONHandler(w, slogLevel, tz)),
		level:  slogLevel,
	}
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() Logger {
	return NewSlogLogger(io.Discard, LogLevelError, time.UTC)
}
