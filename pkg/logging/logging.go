// Package logging configures the process-wide zerolog logger.
//
// Logging is file-only, mirroring the CLI contract: without --log-file the
// logger is a no-op and the user-facing output goes through pkg/ui instead.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log file open modes.
const (
	ModeAppend    = "append"
	ModeOverwrite = "overwrite"
)

// Log levels accepted by Setup.
const (
	LevelInfo  = "info"
	LevelDebug = "debug"
)

// Setup configures the global logger. An empty file disables logging
// entirely. The caller owns validation of level/mode values; Setup returns
// an error for unknown values anyway so misuse is loud.
func Setup(level, file, mode string) error {
	if file == "" {
		log.Logger = zerolog.Nop()
		zerolog.SetGlobalLevel(zerolog.Disabled)
		return nil
	}

	var zlevel zerolog.Level
	switch strings.ToLower(level) {
	case LevelInfo, "":
		zlevel = zerolog.InfoLevel
	case LevelDebug:
		zlevel = zerolog.DebugLevel
	default:
		return fmt.Errorf("unknown log level %q", level)
	}

	flags := os.O_CREATE | os.O_WRONLY
	switch strings.ToLower(mode) {
	case ModeAppend, "":
		flags |= os.O_APPEND
	case ModeOverwrite:
		flags |= os.O_TRUNC
	default:
		return fmt.Errorf("unknown log mode %q", mode)
	}

	if dir := filepath.Dir(file); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	handle, err := os.OpenFile(file, flags, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	zerolog.SetGlobalLevel(zlevel)
	log.Logger = zerolog.New(handle).With().Timestamp().Int("pid", os.Getpid()).Logger()
	log.Debug().Str("level", level).Str("mode", mode).Str("file", file).Msg("Logger initialized")
	return nil
}

// GetLogger returns a contextualized logger with the given component name.
func GetLogger(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
