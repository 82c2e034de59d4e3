package middleware

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/thenexusengine/tne_vpaid/internal/config"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond int // token refill rate per client
	BurstSize         int
	// CreateCost is charged for POST /v1/sessions, which builds an adapter
	// and opens a journal; control calls cost one token.
	CreateCost      int
	CleanupInterval time.Duration
	IdleTimeout     time.Duration
}

// DefaultRateLimitConfig reads RATE_LIMIT_ENABLED, RATE_LIMIT_RPS and RATE_LIMIT_BURST
func DefaultRateLimitConfig() *RateLimitConfig {
	rps, err := strconv.Atoi(os.Getenv("RATE_LIMIT_RPS"))
	if err != nil || rps <= 0 {
		rps = config.DefaultRPS
	}
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		burst = config.DefaultBurstSize
	}

	return &RateLimitConfig{
		Enabled:           os.Getenv("RATE_LIMIT_ENABLED") != "false",
		RequestsPerSecond: rps,
		BurstSize:         burst,
		CreateCost:        5,
		CleanupInterval:   time.Minute,
		IdleTimeout:       time.Minute,
	}
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// RateLimitMetrics defines the metrics interface for rate limiter
type RateLimitMetrics interface {
	IncRateLimitRejected()
}

// RateLimiter is a per-client token bucket. Clients are identified by the
// authenticated host ID, falling back to the remote address.
type RateLimiter struct {
	config   RateLimitConfig
	mu       sync.Mutex
	buckets  map[string]*bucket
	metrics  RateLimitMetrics
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop
func NewRateLimiter(cfg *RateLimitConfig) *RateLimiter {
	if cfg == nil {
		cfg = DefaultRateLimitConfig()
	}
	if cfg.CreateCost < 1 {
		cfg.CreateCost = 1
	}
	rl := &RateLimiter{
		config:  *cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		go rl.cleanupLoop()
	}
	return rl
}

// SetMetrics sets the metrics interface for the rate limiter
func (rl *RateLimiter) SetMetrics(m RateLimitMetrics) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.metrics = m
}

// Stop ends the cleanup loop
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Middleware returns the rate limiting middleware handler
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if !rl.config.Enabled {
		return next
	}
	limit := strconv.Itoa(rl.config.RequestsPerSecond)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cost := 1
		if r.Method == http.MethodPost && r.URL.Path == "/v1/sessions" {
			cost = rl.config.CreateCost
		}

		w.Header().Set("X-RateLimit-Limit", limit)
		if !rl.allow(clientID(r), cost) {
			rl.mu.Lock()
			m := rl.metrics
			rl.mu.Unlock()
			if m != nil {
				m.IncRateLimitRejected()
			}
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(client string, cost int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[client]
	if !ok {
		b = &bucket{tokens: float64(rl.config.BurstSize), lastSeen: now}
		rl.buckets[client] = b
	} else {
		b.tokens += now.Sub(b.lastSeen).Seconds() * float64(rl.config.RequestsPerSecond)
		b.tokens = min(b.tokens, float64(rl.config.BurstSize))
		b.lastSeen = now
	}

	if b.tokens < float64(cost) {
		return false
	}
	b.tokens -= float64(cost)
	return true
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) evictIdle() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	evicted := 0
	for id, b := range rl.buckets {
		if now.Sub(b.lastSeen) > rl.config.IdleTimeout {
			delete(rl.buckets, id)
			evicted++
		}
	}
	return evicted
}

func clientID(r *http.Request) string {
	if host := r.Header.Get(HostIDHeader); host != "" {
		return "host:" + host
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + ip
}
