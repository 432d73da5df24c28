package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ServiceName tags every log line so lines from this service can be told apart in a
// shared sink.
const ServiceName = "exstem-proctor"

// Setup initializes the global zerolog logger.
//   - level: trace, debug, info, warn, error, fatal or panic. Unknown values fall back to info.
//   - format: "pretty" for a console writer, anything else for JSON lines.
func Setup(level, format string) zerolog.Logger {
	return New(os.Stdout, level, format)
}

// New builds the logger on an arbitrary writer.
func New(out io.Writer, level, format string) zerolog.Logger {
	writer := out
	if format == "pretty" {
		writer = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	// Timer ticks and request latencies are sub-second.
	zerolog.DurationFieldUnit = time.Millisecond
	zerolog.TimeFieldFormat = time.RFC3339Nano

	return zerolog.New(writer).
		With().
		Timestamp().
		Str("service", ServiceName).
		Caller().
		Logger()
}

// WithSession scopes a logger to one exam session.
func WithSession(log zerolog.Logger, sessionID, examID string, studentID int) zerolog.Logger {
	return log.With().
		Str("session_id", sessionID).
		Str("exam_id", examID).
		Int("student_id", studentID).
		Logger()
}
