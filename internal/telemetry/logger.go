package telemetry

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the structured logger every component takes.
// keyvals are alternating key/value pairs.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)

	With(keyvals ...any) Logger
}

type zeroLogger struct {
	zerolog.Logger
}

// NewLogger returns a console logger writing to w at the given level
// ("debug", "info", "warn", "error"). An empty level means info.
func NewLogger(w io.Writer, level string) (Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	return &zeroLogger{Logger: zerolog.New(cw).Level(lvl).With().Timestamp().Logger()}, nil
}

// NewStderrLogger is NewLogger on os.Stderr.
func NewStderrLogger(level string) (Logger, error) {
	return NewLogger(os.Stderr, level)
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return &zeroLogger{Logger: zerolog.Nop()}
}

func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "":
		return zerolog.InfoLevel, nil
	case "trace", "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "off", "disabled":
		return zerolog.Disabled, nil
	}
	return zerolog.NoLevel, fmt.Errorf("unknown log level %q", level)
}

func (l *zeroLogger) Debug(msg string, keyvals ...any) { l.emit(l.Logger.Debug(), msg, keyvals) }
func (l *zeroLogger) Info(msg string, keyvals ...any)  { l.emit(l.Logger.Info(), msg, keyvals) }
func (l *zeroLogger) Warn(msg string, keyvals ...any)  { l.emit(l.Logger.Warn(), msg, keyvals) }
func (l *zeroLogger) Error(msg string, keyvals ...any) { l.emit(l.Logger.Error(), msg, keyvals) }

func (l *zeroLogger) With(keyvals ...any) Logger {
	return &zeroLogger{Logger: l.Logger.With().Fields(normalize(keyvals)).Logger()}
}

func (l *zeroLogger) emit(e *zerolog.Event, msg string, keyvals []any) {
	if e == nil {
		return
	}
	e.Fields(normalize(keyvals)).Msg(msg)
}

// normalize turns errors into strings and pads an odd trailing key.
func normalize(keyvals []any) []any {
	if len(keyvals)%2 != 0 {
		keyvals = append(keyvals, "(MISSING)")
	}
	out := make([]any, len(keyvals))
	for i, v := range keyvals {
		if err, ok := v.(error); ok && i%2 == 1 {
			out[i] = err.Error()
			continue
		}
		if i%2 == 0 {
			if _, ok := v.(string); !ok {
				out[i] = fmt.Sprint(v)
				continue
			}
		}
		out[i] = v
	}
	return out
}
