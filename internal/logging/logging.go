// Package logging builds the process-wide zerolog logger used by every
// sandboxrt binary, injected by constructor rather than referenced as a
// package-level global.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds a logger writing to w (os.Stderr in production, a buffer in
// tests) at the level named by levelName ("debug", "info", "warn", "error").
// Unrecognized names fall back to info.
func New(w io.Writer, levelName string) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(levelName)))
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Default builds the console-friendly logger used by cmd/* main functions.
func Default(component string, debug bool) zerolog.Logger {
	level := "info"
	if debug {
		level = "debug"
	}
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return New(console, level).With().Str("component", component).Logger()
}
