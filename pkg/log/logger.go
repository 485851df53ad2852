// Package log wires the pipeline's structured logging: a JSON slog handler
// for stage-level events and a zerolog sink for the warning system.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/rs/zerolog"

	"github.com/moderato-ml/moderato/pkg/errors"
)

// Setup installs the default slog JSON logger at the given level and routes
// pipeline warnings through zerolog on the same writer.
func Setup(loglevel string, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	ops := slog.HandlerOptions{
		Level: ToLogLevel(loglevel),
	}
	handler := slog.NewJSONHandler(w, &ops)
	slog.SetDefault(slog.New(WrapByErrFmtHandler(handler)))

	zl := zerolog.New(w).With().Timestamp().Logger()
	errors.SetZerologWarnFunc(func(warning error) {
		ev := zl.Warn()
		if obj, ok := warning.(zerolog.LogObjectMarshaler); ok {
			ev.EmbedObject(obj)
		}
		ev.Msg(warning.Error())
	})
}

// ToLogLevel maps a level name onto a slog.Level.
func ToLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "", "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		panic(fmt.Sprintf("invalid log level: %s", level))
	}
}

const (
	// ErrAttrKey is the attribute key handlers inspect for wrapped errors.
	ErrAttrKey = "error"
	// StacktraceAttrKey is the attribute key the handler emits stacktraces under.
	StacktraceAttrKey = "stacktrace"
)
