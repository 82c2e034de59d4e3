// Package session hosts VPAID adapters on behalf of remote players.
//
// Each session owns one adapter and a headless renderer. Host calls and the
// adapter's timer callbacks are serialized by the session mutex.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/thenexusengine/tne_vpaid/internal/clock"
	"github.com/thenexusengine/tne_vpaid/internal/journal"
	"github.com/thenexusengine/tne_vpaid/internal/renderer"
	"github.com/thenexusengine/tne_vpaid/internal/storage"
	"github.com/thenexusengine/tne_vpaid/internal/vpaid"
	"github.com/thenexusengine/tne_vpaid/pkg/logger"
)

var (
	// ErrSessionNotFound is returned for unknown or reaped session IDs
	ErrSessionNotFound = errors.New("session not found")
	// ErrCreativeNotFound is returned when a creative ID has no active creative
	ErrCreativeNotFound = errors.New("creative not found")
)

// Config holds session manager settings
type Config struct {
	// StoppedTTL is how long a stopped session stays readable
	StoppedTTL time.Duration
	// MaxAge stops and removes sessions regardless of state
	MaxAge       time.Duration
	ReapInterval time.Duration
	TickInterval time.Duration
	StopDelay    time.Duration
	// JournalTimeout bounds each journal write
	JournalTimeout time.Duration
	MimeTypes      []string
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		StoppedTTL:     5 * time.Minute,
		MaxAge:         time.Hour,
		ReapInterval:   30 * time.Second,
		TickInterval:   vpaid.DefaultTickInterval,
		StopDelay:      vpaid.DefaultStopDelay,
		JournalTimeout: 2 * time.Second,
	}
}

// CreativeSource looks up stored creatives
type CreativeSource interface {
	Get(ctx context.Context, id string) (*storage.Creative, error)
}

// Metrics receives session and adapter telemetry
type Metrics interface {
	EventObserver(variant vpaid.Variant) vpaid.Observer
	RecordMisuse(op string, state vpaid.State)
	RecordCreativeParseError()
	SessionOpened()
	SessionClosed(expired bool)
	IncJournalErrors()
}

// Params describes a session to create. Either CreativeID or AdParameters
// must be set; a stored creative supplies its own variant and settings.
type Params struct {
	CreativeID   string
	AdParameters string
	Variant      vpaid.Variant
	Width        int
	Height       int
	ViewMode     vpaid.ViewMode
	Bitrate      int
	Skippable    *bool
	Duration     float64
	ClickThrough string
}

// Manager owns the live sessions
type Manager struct {
	cfg       Config
	journal   journal.Journal
	creatives CreativeSource
	metrics   Metrics
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session

	stopCh    chan struct{}
	closeOnce sync.Once
	log       zerolog.Logger
}

// NewManager creates a manager. creatives and m may be nil.
// A background reaper runs when cfg.ReapInterval is positive.
func NewManager(cfg Config, j journal.Journal, creatives CreativeSource, m Metrics) *Manager {
	if j == nil {
		j = journal.NewMemory()
	}
	if cfg.JournalTimeout <= 0 {
		cfg.JournalTimeout = 2 * time.Second
	}
	mgr := &Manager{
		cfg:       cfg,
		journal:   j,
		creatives: creatives,
		metrics:   m,
		now:       time.Now,
		sessions:  make(map[string]*Session),
		stopCh:    make(chan struct{}),
		log:       logger.Component("session"),
	}
	if cfg.ReapInterval > 0 {
		go mgr.reapLoop()
	}
	return mgr
}

// Create builds and initializes a session. On a creative parse failure the
// error matches vpaid.ErrCreativeParse and no session is kept.
func (m *Manager) Create(ctx context.Context, p Params) (*Session, error) {
	adParams := p.AdParameters
	variant := p.Variant
	var opts []vpaid.Option

	if p.CreativeID != "" {
		creative, err := m.lookupCreative(ctx, p.CreativeID)
		if err != nil {
			return nil, err
		}
		v, ok := vpaid.ParseVariant(creative.Variant)
		if !ok {
			return nil, fmt.Errorf("creative %s has unknown variant %q", creative.ID, creative.Variant)
		}
		adParams = creative.AdParameters
		variant = v
		opts = append(opts, creative.AdapterOptions()...)
	}
	if p.Skippable != nil {
		opts = append(opts, vpaid.WithSkippable(*p.Skippable))
	}
	if p.Duration > 0 {
		opts = append(opts, vpaid.WithDefaultDuration(p.Duration))
	}
	if p.ClickThrough != "" {
		opts = append(opts, vpaid.WithClickThroughURL(p.ClickThrough))
	}

	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: m.now(),
		renderer:  renderer.NewHeadless(m.cfg.MimeTypes...),
	}
	s.log = logger.Session(s.ID)

	opts = append(opts,
		vpaid.WithScheduler(clock.NewReal(&s.mu)),
		vpaid.WithLogger(s.log),
		vpaid.WithTickInterval(m.cfg.TickInterval),
		vpaid.WithStopDelay(m.cfg.StopDelay),
		vpaid.WithObserver(func(name vpaid.EventName, _ []any) {
			if name == vpaid.AdStopped {
				s.stoppedAt = m.now()
			}
		}),
	)
	if m.metrics != nil {
		opts = append(opts,
			vpaid.WithObserver(m.metrics.EventObserver(variant)),
			vpaid.WithMisuseHook(m.metrics.RecordMisuse),
		)
	}

	adapter, err := vpaid.New(variant, s.renderer, opts...)
	if err != nil {
		return nil, fmt.Errorf("create adapter: %w", err)
	}
	s.adapter = adapter
	for _, name := range vpaid.Events {
		adapter.Subscribe(name, func(ctx any, args ...any) {
			m.record(ctx.(*Session), name, args)
		}, s)
	}

	viewMode := p.ViewMode
	if viewMode == "" {
		viewMode = vpaid.ViewModeNormal
	}

	s.mu.Lock()
	err = adapter.Init(p.Width, p.Height, viewMode, p.Bitrate,
		vpaid.CreativeData{AdParameters: adParams}, vpaid.Environment{VideoSlotCanAutoPlay: true})
	s.mu.Unlock()
	if err != nil {
		if m.metrics != nil && errors.Is(err, vpaid.ErrCreativeParse) {
			m.metrics.RecordCreativeParseError()
		}
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.SessionOpened()
	}

	s.log.Info().
		Str("variant", variant.String()).
		Str("creative_id", p.CreativeID).
		Msg("Session created")
	return s, nil
}

func (m *Manager) lookupCreative(ctx context.Context, id string) (*storage.Creative, error) {
	if m.creatives == nil {
		return nil, ErrCreativeNotFound
	}
	creative, err := m.creatives.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load creative: %w", err)
	}
	if creative == nil {
		return nil, ErrCreativeNotFound
	}
	return creative, nil
}

// record journals one event. It runs inside dispatch with the session lock held.
func (m *Manager) record(s *Session, name vpaid.EventName, args []any) {
	entry := journal.Entry{SessionID: s.ID, Event: name, Args: args, At: m.now()}

	jctx, cancel := context.WithTimeout(context.Background(), m.cfg.JournalTimeout)
	defer cancel()
	if err := m.journal.Append(jctx, entry); err != nil {
		s.log.Warn().Err(err).Str("event", string(name)).Msg("Failed to journal event")
		if m.metrics != nil {
			m.metrics.IncJournalErrors()
		}
	}
}

// Get returns a live session
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Events returns the session's journal in dispatch order
func (m *Manager) Events(ctx context.Context, id string) ([]journal.Entry, error) {
	if _, err := m.Get(id); err != nil {
		return nil, err
	}
	return m.journal.Entries(ctx, id)
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Reap removes sessions stopped for longer than StoppedTTL and stops and
// removes sessions older than MaxAge. It returns how many were removed.
func (m *Manager) Reap() int {
	now := m.now()

	m.mu.RLock()
	candidates := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		candidates = append(candidates, s)
	}
	m.mu.RUnlock()
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.Before(candidates[j].CreatedAt) })

	removed := 0
	for _, s := range candidates {
		expired, stale := s.expiry(now, m.cfg)
		if !expired && !stale {
			continue
		}
		s.retire()

		m.mu.Lock()
		delete(m.sessions, s.ID)
		m.mu.Unlock()

		if err := m.journal.Delete(context.Background(), s.ID); err != nil {
			s.log.Debug().Err(err).Msg("Failed to delete journal")
		}
		if m.metrics != nil {
			m.metrics.SessionClosed(true)
		}
		removed++
	}
	if removed > 0 {
		m.log.Debug().Int("removed", removed).Int("remaining", m.Len()).Msg("Reaped sessions")
	}
	return removed
}

func (m *Manager) reapLoop() {
	ticker := time.NewTicker(m.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Reap()
		case <-m.stopCh:
			return
		}
	}
}

// Close stops the reaper and every live session
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.stopCh)

		m.mu.Lock()
		sessions := m.sessions
		m.sessions = make(map[string]*Session)
		m.mu.Unlock()

		for _, s := range sessions {
			s.retire()
			if m.metrics != nil {
				m.metrics.SessionClosed(false)
			}
		}
		m.log.Info().Int("sessions", len(sessions)).Msg("Session manager closed")
	})
}
