package observability

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

// TemporalLogger adapts zerolog to the Temporal SDK's log.Logger interface
// so client and worker internals share the service's structured log stream.
type TemporalLogger struct {
	logger zerolog.Logger
}

// NewTemporalLogger wraps the given zerolog.Logger, stamping every entry
// with "component":"temporal-sdk".
func NewTemporalLogger(logger zerolog.Logger) *TemporalLogger {
	return &TemporalLogger{logger: logger.With().Str("component", "temporal-sdk").Logger()}
}

// Debug logs at debug level with alternating key-value pairs.
func (l *TemporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.emit(l.logger.Debug(), msg, keyvals)
}

// Info logs at info level with alternating key-value pairs.
func (l *TemporalLogger) Info(msg string, keyvals ...interface{}) {
	l.emit(l.logger.Info(), msg, keyvals)
}

// Warn logs at warn level with alternating key-value pairs.
func (l *TemporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.emit(l.logger.Warn(), msg, keyvals)
}

// Error logs at error level with alternating key-value pairs.
func (l *TemporalLogger) Error(msg string, keyvals ...interface{}) {
	l.emit(l.logger.Error(), msg, keyvals)
}

// With returns a child logger carrying the given key-value pairs on every
// entry. The SDK uses this to attach workflow and activity identifiers.
func (l *TemporalLogger) With(keyvals ...interface{}) log.Logger {
	ctx := l.logger.With()
	for k, v := range keyvalFields(keyvals) {
		ctx = ctx.Interface(k, v)
	}
	return &TemporalLogger{logger: ctx.Logger()}
}

func (l *TemporalLogger) emit(event *zerolog.Event, msg string, keyvals []interface{}) {
	event.Fields(keyvalFields(keyvals)).Msg(msg)
}

// keyvalFields converts the SDK's alternating key-value slice into a map.
// A non-string key is stringified rather than dropped; a trailing key
// without a value is ignored.
func keyvalFields(keyvals []interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keyvals[i])
		}
		m[key] = keyvals[i+1]
	}
	return m
}
