package app

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// newLogger creates an isolated slog.Logger. The "auto" format picks the
// text handler when outW is a terminal and JSON otherwise.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if formatStr == "" || formatStr == "auto" {
		formatStr = "json"
		if f, ok := outW.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			formatStr = "text"
		}
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if formatStr == "json" {
		handler = slog.NewJSONHandler(outW, handlerOpts)
	} else {
		handler = slog.NewTextHandler(outW, handlerOpts)
	}
	return slog.New(handler)
}
