// Package middleware provides HTTP middleware for the VPAID host bridge
package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/thenexusengine/tne_vpaid/internal/config"
	"github.com/thenexusengine/tne_vpaid/pkg/logger"
)

const (
	// #nosec G101 -- Redis key name, not a credential
	RedisAPIKeysHash = "vpaid:api_keys" // hash: api_key -> host_id

	// HostIDHeader carries the authenticated host (player integration) ID downstream
	HostIDHeader = "X-Host-ID"
)

// KeyStore looks up shared API keys
type KeyStore interface {
	HGet(ctx context.Context, key, field string) (string, error)
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Enabled     bool
	APIKeys     map[string]string // key -> host ID (local keys, checked after Redis)
	HeaderName  string
	BypassPaths []string
}

// DefaultAuthConfig reads AUTH_ENABLED and API_KEYS
func DefaultAuthConfig() *AuthConfig {
	return &AuthConfig{
		Enabled:     os.Getenv("AUTH_ENABLED") == "true",
		APIKeys:     ParseAPIKeys(os.Getenv("API_KEYS")),
		HeaderName:  "X-API-Key",
		BypassPaths: []string{"/health", "/metrics", "/v1/handshake"},
	}
}

// ParseAPIKeys parses "key1:host1,key2:host2". A key without a host maps to "default".
func ParseAPIKeys(envValue string) map[string]string {
	keys := make(map[string]string)
	for _, pair := range strings.Split(envValue, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, host, found := strings.Cut(pair, ":")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if host = strings.TrimSpace(host); !found || host == "" {
			host = "default"
		}
		keys[key] = host
	}
	return keys
}

// AuthMetrics defines the metrics interface for auth middleware
type AuthMetrics interface {
	IncAuthFailures()
}

type cachedKey struct {
	hostID    string
	expiresAt time.Time
}

// Auth validates API keys from the X-API-Key header or a Bearer token
type Auth struct {
	mu       sync.RWMutex
	config   *AuthConfig
	keys     KeyStore
	metrics  AuthMetrics
	cacheMu  sync.Mutex
	keyCache map[string]cachedKey
	now      func() time.Time
}

// NewAuth creates a new Auth middleware
func NewAuth(cfg *AuthConfig) *Auth {
	if cfg == nil {
		cfg = DefaultAuthConfig()
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = "X-API-Key"
	}
	return &Auth{
		config:   cfg,
		keyCache: make(map[string]cachedKey),
		now:      time.Now,
	}
}

// SetKeyStore sets the Redis-backed key store
func (a *Auth) SetKeyStore(store KeyStore) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = store
}

// SetMetrics sets the metrics interface for auth middleware
func (a *Auth) SetMetrics(m AuthMetrics) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metrics = m
}

// IsEnabled returns whether authentication is enabled
func (a *Auth) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config.Enabled
}

// Middleware returns the authentication middleware handler
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only this middleware may assert a host identity
		r.Header.Del(HostIDHeader)

		a.mu.RLock()
		enabled := a.config.Enabled
		bypass := a.config.BypassPaths
		header := a.config.HeaderName
		a.mu.RUnlock()

		if !enabled || bypassed(r.URL.Path, bypass) {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get(header)
		if apiKey == "" {
			if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
				apiKey = token
			}
		}
		if apiKey == "" {
			a.reject(w, http.StatusUnauthorized, "missing API key")
			return
		}

		hostID, ok := a.validateKey(r.Context(), apiKey)
		if !ok {
			a.reject(w, http.StatusForbidden, "invalid API key")
			return
		}

		r.Header.Set(HostIDHeader, hostID)
		next.ServeHTTP(w, r)
	})
}

// bypassed matches whole path segments so /healthz does not ride on /health
func bypassed(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// validateKey returns the host ID for a key. Redis is consulted first, then
// the local keys. Results are cached, negative ones briefly.
func (a *Auth) validateKey(ctx context.Context, key string) (string, bool) {
	if hostID, found := a.cached(key); found {
		return hostID, hostID != ""
	}

	a.mu.RLock()
	store := a.keys
	a.mu.RUnlock()

	if store != nil {
		hostID, err := store.HGet(ctx, RedisAPIKeysHash, key)
		if err != nil {
			log := logger.Component("auth")
			log.Debug().Err(err).Msg("Redis API key lookup failed, falling back to local keys")
		} else if hostID != "" {
			a.remember(key, hostID)
			return hostID, true
		}
	}

	var hostID string
	a.mu.RLock()
	for validKey, host := range a.config.APIKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(validKey)) == 1 {
			hostID = host
			break
		}
	}
	a.mu.RUnlock()

	a.remember(key, hostID)
	return hostID, hostID != ""
}

func (a *Auth) cached(key string) (string, bool) {
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()
	c, ok := a.keyCache[key]
	if !ok || a.now().After(c.expiresAt) {
		return "", false
	}
	return c.hostID, true
}

func (a *Auth) remember(key, hostID string) {
	ttl := config.AuthCacheTimeout
	if hostID == "" {
		ttl = config.AuthNegativeCacheTimeout
	}
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()
	a.keyCache[key] = cachedKey{hostID: hostID, expiresAt: a.now().Add(ttl)}
}

// ClearCache clears the API key cache
func (a *Auth) ClearCache() {
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()
	a.keyCache = make(map[string]cachedKey)
}

func (a *Auth) reject(w http.ResponseWriter, status int, message string) {
	a.mu.RLock()
	m := a.metrics
	a.mu.RUnlock()
	if m != nil {
		m.IncAuthFailures()
	}
	writeError(w, status, message)
}

// writeError writes the bridge's JSON error body
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
