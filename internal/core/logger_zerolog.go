package core

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger adapts a zerolog.Logger to Logger.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog logger.
func NewZerologLogger(log zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{log: log}
}

// Zerolog returns the wrapped logger.
func (l *ZerologLogger) Zerolog() zerolog.Logger { return l.log }

// NewConsoleLogger builds a human readable zerolog logger tagged with app at
// the given level (trace|debug|info|warn|error; default info).
func NewConsoleLogger(w io.Writer, app, level string) *ZerologLogger {
	if w == nil {
		w = os.Stdout
	}
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	log := zerolog.New(output).With().Timestamp().Str("app", app).Logger().Level(ParseLevel(level))
	return NewZerologLogger(log)
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(raw string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *ZerologLogger) Debug(msg string, args ...any) { l.write(l.log.Debug(), msg, args) }
func (l *ZerologLogger) Info(msg string, args ...any)  { l.write(l.log.Info(), msg, args) }
func (l *ZerologLogger) Warn(msg string, args ...any)  { l.write(l.log.Warn(), msg, args) }
func (l *ZerologLogger) Error(msg string, args ...any) { l.write(l.log.Error(), msg, args) }

func (l *ZerologLogger) write(ev *zerolog.Event, msg string, args []any) {
	if ev == nil {
		return
	}
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if i+1 >= len(args) {
			ev = ev.Bool(key, true)
			break
		}
		ev = ev.Interface(key, args[i+1])
	}
	ev.Msg(msg)
}
