// Package logging builds the structured loggers used across heaviside.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Format selects the log line encoding.
type Format string

const (
	// FormatText writes key=value lines.
	FormatText Format = "text"
	// FormatJSON writes one JSON object per line.
	FormatJSON Format = "json"
)

// Config configures a logger.
type Config struct {
	// Level is the minimum level written: debug, info, warn or error.
	Level string
	// Format is text or json. Defaults to text.
	Format Format
	// Output is where logs are written. Defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: FormatText,
		Output: os.Stderr,
	}
}

// ParseLevel parses a level name. Unknown names yield info.
func ParseLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// New creates a logger entry tagged with the application name.
func New(cfg Config) *logrus.Entry {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	l := logrus.New()
	l.SetOutput(cfg.Output)
	l.SetLevel(ParseLevel(cfg.Level))
	if cfg.Format == FormatJSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000",
		})
	}
	return logrus.NewEntry(l).WithField("app", "heaviside")
}

// WithComponent returns l with the component field set.
func WithComponent(l *logrus.Entry, component string) *logrus.Entry {
	if l == nil {
		l = Null()
	}
	return l.WithField("component", component)
}

// Null returns a logger that discards everything.
func Null() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}
