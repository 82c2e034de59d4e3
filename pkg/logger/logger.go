// Package logger provides structured logging for the VPAID host bridge
package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type contextKey string

const (
	// RequestIDKey is the context key for the request ID
	RequestIDKey contextKey = "request_id"
	// SessionIDKey is the context key for the ad session ID
	SessionIDKey contextKey = "session_id"

	serviceName = "vpaid"
)

// Log is the global logger
var Log zerolog.Logger

func init() {
	Init(DefaultConfig())
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string
}

// DefaultConfig returns the configuration taken from LOG_LEVEL and LOG_FORMAT
func DefaultConfig() Config {
	return Config{
		Level:      getEnv("LOG_LEVEL", "info"),
		Format:     getEnv("LOG_FORMAT", "json"),
		TimeFormat: time.RFC3339,
	}
}

// Init initializes the global logger
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	var out zerolog.Logger
	if cfg.Format == "console" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: cfg.TimeFormat})
	} else {
		out = zerolog.New(os.Stdout)
	}

	Log = out.Level(level).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithSessionID adds an ad session ID to the context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// FromContext returns a logger carrying the IDs found in ctx
func FromContext(ctx context.Context) *zerolog.Logger {
	l := Log.With()
	if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
		l = l.Str("request_id", id)
	}
	if id, ok := ctx.Value(SessionIDKey).(string); ok && id != "" {
		l = l.Str("session_id", id)
	}
	logger := l.Logger()
	return &logger
}

// Session returns a logger for one ad session
func Session(sessionID string) zerolog.Logger {
	return Log.With().Str("session_id", sessionID).Logger()
}

// Component returns a logger tagged with a component name
func Component(name string) zerolog.Logger {
	return Log.With().Str("component", name).Logger()
}

// HTTP returns a logger for the HTTP layer
func HTTP() zerolog.Logger {
	return Component("http")
}

// RequestLogger logs on behalf of one HTTP request
type RequestLogger struct {
	logger    zerolog.Logger
	startTime time.Time
}

// NewRequestLogger creates a request-scoped logger on the HTTP component
func NewRequestLogger(requestID string) *RequestLogger {
	return &RequestLogger{
		logger:    HTTP().With().Str("request_id", requestID).Logger(),
		startTime: time.Now(),
	}
}

// WithField returns a copy carrying an extra field
func (r *RequestLogger) WithField(key string, value interface{}) *RequestLogger {
	return &RequestLogger{
		logger:    r.logger.With().Interface(key, value).Logger(),
		startTime: r.startTime,
	}
}

func (r *RequestLogger) Info(msg string) {
	r.logger.Info().Msg(msg)
}

func (r *RequestLogger) Debug(msg string) {
	r.logger.Debug().Msg(msg)
}

func (r *RequestLogger) Warn(msg string) {
	r.logger.Warn().Msg(msg)
}

func (r *RequestLogger) Error(msg string, err error) {
	r.logger.Error().Err(err).Msg(msg)
}

// Duration returns the time since the request started
func (r *RequestLogger) Duration() time.Duration {
	return time.Since(r.startTime)
}

// LogComplete logs request completion with status and duration. Client
// errors log at warn, server errors at error.
func (r *RequestLogger) LogComplete(status int) {
	event := r.logger.Info()
	switch {
	case status >= 500:
		event = r.logger.Error()
	case status >= 400:
		event = r.logger.Warn()
	}
	event.
		Int("status", status).
		Float64("duration_ms", float64(r.Duration().Microseconds())/1000).
		Msg("request completed")
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
