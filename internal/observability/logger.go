package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggingConfig controls how NewLogger builds the process logger.
type LoggingConfig struct {
	// Level is the minimum level that gets emitted (trace through panic).
	Level string

	// Format selects json or a human-readable console rendering.
	Format string

	// Output selects stdout or stderr.
	Output string

	// AddSource stamps entries with the caller's file and line.
	AddSource bool

	// TimeFormat overrides the RFC3339 timestamp format.
	TimeFormat string
}

// DefaultLoggingConfig is the configuration used when nothing is specified:
// info-level JSON on stdout.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:      "info",
		Format:     "json",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}
}

// NewLogger builds a zerolog logger from configuration. Unrecognized
// values fall back to the defaults rather than failing.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = timeFormat

	output := destination(cfg.Output)
	switch strings.ToLower(cfg.Format) {
	case "console", "pretty":
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: timeFormat}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.AddSource {
		ctx = ctx.Caller()
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	return ctx.Logger().Level(level)
}

func destination(name string) io.Writer {
	if strings.ToLower(name) == "stderr" {
		return os.Stderr
	}
	return os.Stdout
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithJobContext stamps the job and project identifiers every log line in
// a job's lifecycle should carry.
func WithJobContext(logger zerolog.Logger, jobID, projectID string) zerolog.Logger {
	return logger.With().
		Str("job_id", jobID).
		Str("project_id", projectID).
		Logger()
}
