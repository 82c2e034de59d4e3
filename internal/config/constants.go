// Package config provides shared configuration constants for the VPAID bridge
package config

import "time"

// Server timeout defaults
const (
	// ServerReadTimeout is the maximum duration for reading the entire request
	ServerReadTimeout = 5 * time.Second

	// ServerWriteTimeout is the maximum duration before timing out writes of the response
	ServerWriteTimeout = 10 * time.Second

	// ServerIdleTimeout is the maximum time to wait for the next request when keep-alives are enabled
	ServerIdleTimeout = 120 * time.Second

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout = 30 * time.Second
)

// Auth cache defaults
const (
	// AuthCacheTimeout is how long to cache valid API keys
	AuthCacheTimeout = 60 * time.Second

	// AuthNegativeCacheTimeout is how long to cache invalid API key results
	AuthNegativeCacheTimeout = 10 * time.Second
)

// Rate limiting defaults
const (
	// DefaultRPS is the default requests per second limit per client
	DefaultRPS = 200

	// DefaultBurstSize is the default burst size for rate limiting
	DefaultBurstSize = 50
)

// Size limiting defaults
const (
	// DefaultMaxBodySize is the default maximum request body size (256KB).
	// AdParameters documents are the largest bodies the bridge accepts.
	DefaultMaxBodySize = 256 * 1024

	// DefaultMaxURLLength is the default maximum URL length (8KB)
	DefaultMaxURLLength = 8192
)

// Session defaults
const (
	// SessionStoppedTTL is how long a stopped session stays readable
	SessionStoppedTTL = 5 * time.Minute

	// SessionMaxAge stops sessions the host abandoned
	SessionMaxAge = time.Hour

	// SessionReapInterval is how often expired sessions are collected
	SessionReapInterval = 30 * time.Second

	// JournalTTL bounds how long a session's event journal stays in Redis
	JournalTTL = 24 * time.Hour

	// JournalWriteTimeout bounds each journal append
	JournalWriteTimeout = 2 * time.Second
)

// Readiness check defaults
const (
	// ReadyCheckTimeout bounds each dependency check in /health/ready
	ReadyCheckTimeout = 2 * time.Second
)
