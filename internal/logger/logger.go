package logger

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// New builds the application logger. Production logs JSON; development gets
// the human-readable console writer.
func New(w io.Writer, env, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	if env != "prod" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "essence").
		Logger()
}
