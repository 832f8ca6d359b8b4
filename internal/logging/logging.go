// Package logging builds the process logger. Logs always go to stderr so
// stdout stays free for NDJSON events.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

type Options struct {
	Level  string
	Format Format
	Writer io.Writer
	// NoColor disables ANSI colours in text mode.
	NoColor bool
}

// ParseLevel accepts zerolog level names plus "warning"; empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	case "off", "none":
		return zerolog.Disabled, nil
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}

func New(opts Options) (zerolog.Logger, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), err
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	switch opts.Format {
	case "", FormatText:
		w = zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    opts.NoColor,
			TimeFormat: time.TimeOnly,
		}
	case FormatJSON:
	default:
		return zerolog.Nop(), fmt.Errorf("unsupported log format: %s", opts.Format)
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// Discard is a logger that drops everything; used when no logger is wired.
func Discard() zerolog.Logger {
	return zerolog.Nop()
}
