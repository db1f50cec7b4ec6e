package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/yourusername/swiftsocket/internal/config"
)

var (
	// Log is the global logger instance
	Log = zerolog.Nop()

	logFile *os.File
)

// Init initializes the logger based on configuration
func Init(cfg *config.Config) error {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level := SetLevel(cfg.Logs.Level)

	var console io.Writer = os.Stderr
	if !cfg.Logs.JSONFormat {
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	writer := console
	if cfg.Logs.Directory != "" {
		if err := os.MkdirAll(cfg.Logs.Directory, 0755); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}

		f, err := os.OpenFile(
			filepath.Join(cfg.Logs.Directory, "swiftsocket.log"),
			os.O_APPEND|os.O_CREATE|os.O_WRONLY,
			0644,
		)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		// The file always gets JSON lines
		writer = io.MultiWriter(console, f)
	}

	Log = zerolog.New(writer).With().Timestamp().Logger()

	Log.Debug().
		Str("log_level", level.String()).
		Bool("json_format", cfg.Logs.JSONFormat).
		Msg("Logger initialized")

	return nil
}

// SetLevel changes the global level, falling back to info for unknown names.
func SetLevel(name string) zerolog.Level {
	level, err := zerolog.ParseLevel(name)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	return level
}

// Shutdown flushes and closes the log file, if any
func Shutdown() {
	if logFile != nil {
		logFile.Sync()
		logFile.Close()
		logFile = nil
	}
}
