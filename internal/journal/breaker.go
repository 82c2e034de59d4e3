package journal

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Breaker states
const (
	StateClosed   = "closed"    // store healthy
	StateOpen     = "open"      // store failing, calls rejected
	StateHalfOpen = "half-open" // one probe allowed through
)

// ErrCircuitOpen is returned when the breaker rejects a call
var ErrCircuitOpen = errors.New("journal circuit breaker is open")

// BreakerConfig holds circuit breaker configuration
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // probe successes needed to close again
	Cooldown         time.Duration // time open before a probe is allowed
	OnStateChange    func(from, to string)
}

// DefaultBreakerConfig returns defaults sized for a journal write per event
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Cooldown:         10 * time.Second,
	}
}

// BreakerStats is a snapshot of breaker counters
type BreakerStats struct {
	State       string `json:"state"`
	Calls       int64  `json:"calls"`
	Failures    int64  `json:"failures"`
	Rejected    int64  `json:"rejected"`
	Consecutive int    `json:"consecutive_failures"`
}

// Breaker stops calling a failing store until a cooldown has passed
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu        sync.Mutex
	state     string
	failures  int
	successes int
	openedAt  time.Time
	probing   bool
	stats     BreakerStats

	callbacks sync.WaitGroup
}

// NewBreaker creates a closed breaker
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	return &Breaker{cfg: cfg, now: time.Now, state: StateClosed}
}

// Execute runs fn unless the breaker is open
func (b *Breaker) Execute(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Calls++
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			b.stats.Rejected++
			return ErrCircuitOpen
		}
		b.setState(StateHalfOpen)
		b.probing = true
	case StateHalfOpen:
		if b.probing {
			b.stats.Rejected++
			return ErrCircuitOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if err != nil {
		b.stats.Failures++
		b.failures++
		b.successes = 0
		if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
			b.open()
		}
		return
	}

	b.failures = 0
	if b.state == StateHalfOpen {
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.setState(StateClosed)
		}
	}
}

func (b *Breaker) open() {
	b.openedAt = b.now()
	b.setState(StateOpen)
}

func (b *Breaker) setState(to string) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.successes = 0

	if b.cfg.OnStateChange != nil {
		b.callbacks.Add(1)
		go func() {
			defer b.callbacks.Done()
			b.cfg.OnStateChange(from, to)
		}()
	}
}

// State returns the current breaker state
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a snapshot of the breaker counters
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.State = b.state
	s.Consecutive = b.failures
	return s
}

// Reset closes the breaker and clears the failure count
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probing = false
	b.setState(StateClosed)
}

// Close waits for pending state change callbacks
func (b *Breaker) Close() {
	b.callbacks.Wait()
}

// Guarded writes to a primary journal behind a breaker. A session whose
// write was refused or failed keeps journaling to memory from then on so
// its entries stay in dispatch order.
type Guarded struct {
	primary  Journal
	fallback *Memory
	breaker  *Breaker

	mu      sync.Mutex
	spilled map[string]bool
}

// NewGuarded wraps primary with a breaker and an in-memory fallback
func NewGuarded(primary Journal, cfg BreakerConfig) *Guarded {
	return &Guarded{
		primary:  primary,
		fallback: NewMemory(),
		breaker:  NewBreaker(cfg),
		spilled:  make(map[string]bool),
	}
}

// Append returns the primary failure, if any, after keeping the entry in memory
func (g *Guarded) Append(ctx context.Context, e Entry) error {
	if g.isSpilled(e.SessionID) {
		return g.fallback.Append(ctx, e)
	}

	err := g.breaker.Execute(func() error {
		return g.primary.Append(ctx, e)
	})
	if err == nil {
		return nil
	}

	g.mu.Lock()
	g.spilled[e.SessionID] = true
	g.mu.Unlock()

	if ferr := g.fallback.Append(ctx, e); ferr != nil {
		return ferr
	}
	return err
}

// Entries returns primary entries followed by any that spilled to memory
func (g *Guarded) Entries(ctx context.Context, sessionID string) ([]Entry, error) {
	var entries []Entry
	err := g.breaker.Execute(func() error {
		var err error
		entries, err = g.primary.Entries(ctx, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if g.isSpilled(sessionID) {
		local, _ := g.fallback.Entries(ctx, sessionID)
		entries = append(entries, local...)
	}
	return entries, nil
}

// Delete drops the session from both stores
func (g *Guarded) Delete(ctx context.Context, sessionID string) error {
	g.mu.Lock()
	delete(g.spilled, sessionID)
	g.mu.Unlock()
	_ = g.fallback.Delete(ctx, sessionID)

	return g.breaker.Execute(func() error {
		return g.primary.Delete(ctx, sessionID)
	})
}

// Breaker exposes the breaker for readiness and tests
func (g *Guarded) Breaker() *Breaker {
	return g.breaker
}

func (g *Guarded) isSpilled(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.spilled[sessionID]
}
