package main

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/thenexusengine/tne_vpaid/internal/config"
	"github.com/thenexusengine/tne_vpaid/internal/session"
	"github.com/thenexusengine/tne_vpaid/internal/vpaid"
)

// ServerConfig holds all server configuration
type ServerConfig struct {
	// Server
	Port string

	// Database
	DatabaseConfig *DatabaseConfig

	// CreativesFile is a YAML creative catalog
	CreativesFile string

	// Redis
	RedisURL   string
	JournalTTL time.Duration

	// Sessions
	SessionTTL    time.Duration
	SessionMaxAge time.Duration
	TickInterval  time.Duration
	StopDelay     time.Duration
	MimeTypes     []string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string

	// EnsureSchema creates the creatives table at startup
	EnsureSchema bool
}

// ParseConfig parses configuration from flags and environment variables
func ParseConfig() *ServerConfig {
	port := flag.String("port", getEnvOrDefault("VPAID_PORT", "8000"), "Server port")
	sessionTTL := flag.Duration("session-ttl", getEnvDurationOrDefault("VPAID_SESSION_TTL", config.SessionStoppedTTL), "How long stopped sessions stay readable")
	tick := flag.Duration("tick-interval", getEnvDurationOrDefault("VPAID_TICK_INTERVAL", vpaid.DefaultTickInterval), "Wall-clock progress tick for non-linear ads")
	stopDelay := flag.Duration("stop-delay", getEnvDurationOrDefault("VPAID_STOP_DELAY", vpaid.DefaultStopDelay), "Delay before AdStopped is reported")
	flag.Parse()

	cfg := &ServerConfig{
		Port:          *port,
		RedisURL:      os.Getenv("REDIS_URL"),
		JournalTTL:    getEnvDurationOrDefault("VPAID_JOURNAL_TTL", config.JournalTTL),
		SessionTTL:    *sessionTTL,
		SessionMaxAge: getEnvDurationOrDefault("VPAID_SESSION_MAX_AGE", config.SessionMaxAge),
		TickInterval:  *tick,
		StopDelay:     *stopDelay,
		MimeTypes:     splitList(os.Getenv("VPAID_MIME_TYPES")),
		CreativesFile: os.Getenv("VPAID_CREATIVES_FILE"),
	}

	// Parse database config if DB_HOST is set
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		cfg.DatabaseConfig = &DatabaseConfig{
			Host:     dbHost,
			Port:     getEnvOrDefault("DB_PORT", "5432"),
			User:     getEnvOrDefault("DB_USER", "vpaid"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "vpaid"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),

			EnsureSchema: getEnvBoolOrDefault("DB_ENSURE_SCHEMA", true),
		}
	}

	return cfg
}

// ToSessionConfig converts ServerConfig to session.Config
func (c *ServerConfig) ToSessionConfig() session.Config {
	return session.Config{
		StoppedTTL:     c.SessionTTL,
		MaxAge:         c.SessionMaxAge,
		ReapInterval:   config.SessionReapInterval,
		TickInterval:   c.TickInterval,
		StopDelay:      c.StopDelay,
		JournalTimeout: config.JournalWriteTimeout,
		MimeTypes:      c.MimeTypes,
	}
}

// getEnvOrDefault returns the environment variable value or a default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBoolOrDefault returns the environment variable as bool or a default
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvDurationOrDefault parses a duration such as "250ms"; unparseable
// or non-positive values fall back to the default
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
