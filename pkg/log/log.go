package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process logger. It discards output until Init is called.
var Logger = zerolog.Nop()

// Level is a log level as written in config files and flags
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

var zerologLevels = map[Level]zerolog.Level{
	DebugLevel: zerolog.DebugLevel,
	InfoLevel:  zerolog.InfoLevel,
	WarnLevel:  zerolog.WarnLevel,
	ErrorLevel: zerolog.ErrorLevel,
}

// ParseLevel reads a level name case-insensitively. Unknown names mean info.
func ParseLevel(s string) Level {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := zerologLevels[l]; ok {
		return l
	}
	return InfoLevel
}

// Config selects the level and output format
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer // defaults to stderr
}

// Init replaces Logger and sets the zerolog global level
func Init(cfg Config) {
	level, ok := zerologLevels[cfg.Level]
	if !ok {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSONOutput {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	Logger = zerolog.New(out).With().Timestamp().Logger()
}

// WithComponent returns a child of Logger tagged with the component name
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithGroup tags logger with an event group
func WithGroup(logger zerolog.Logger, group string) zerolog.Logger {
	return logger.With().Str("group", group).Logger()
}
