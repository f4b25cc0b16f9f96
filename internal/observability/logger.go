package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the service logger. Development environments get a
// console writer; everything else logs JSON to stdout.
func NewLogger(environment, level string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if environment == "" || environment == "development" || environment == "dev" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", ServiceName).Logger()
}
