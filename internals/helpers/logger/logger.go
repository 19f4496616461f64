package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once sync.Once
	base zerolog.Logger
	out  io.Writer
)

// Setup builds the process logger. LOG_LEVEL picks the level, APP_ENV=development
// switches to the console writer. Safe to call more than once; the first call wins.
func Setup(w io.Writer) zerolog.Logger {
	once.Do(func() {
		if w == nil {
			w = os.Stdout
		}
		if strings.EqualFold(os.Getenv("APP_ENV"), "development") {
			w = zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02 15:04:05"}
		}
		level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))))
		if err != nil || level == zerolog.NoLevel {
			level = zerolog.InfoLevel
		}
		out = w
		zerolog.TimeFieldFormat = time.RFC3339Nano
		base = zerolog.New(w).Level(level).With().Timestamp().Logger()
	})
	return base
}

// L returns the process logger.
func L() *zerolog.Logger {
	Setup(nil)
	return &base
}

// For returns a child logger tagged with the component name.
func For(component string) zerolog.Logger {
	return L().With().Str("component", component).Logger()
}

// AccessWriter is the writer the process logger writes to, shared with the HTTP access log.
func AccessWriter() io.Writer {
	Setup(nil)
	return out
}
