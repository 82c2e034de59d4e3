package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/thenexusengine/tne_vpaid/internal/renderer"
	"github.com/thenexusengine/tne_vpaid/internal/vpaid"
)

// Session is one hosted ad impression
type Session struct {
	ID        string
	CreatedAt time.Time

	mu        sync.Mutex
	adapter   *vpaid.Adapter
	renderer  *renderer.Headless
	stoppedAt time.Time
	log       zerolog.Logger
}

// View is what the bridge returns to the remote player after each call
type View struct {
	ID         string           `json:"id"`
	State      string           `json:"state"`
	Variant    string           `json:"variant"`
	Attributes vpaid.Attributes `json:"attributes"`
	Renderer   renderer.State   `json:"renderer"`
}

// Do runs fn against the adapter with the session lock held and returns
// the resulting view.
func (s *Session) Do(fn func(a *vpaid.Adapter)) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		fn(s.adapter)
	}
	return s.view()
}

// View returns the current state without changing it
func (s *Session) View() View {
	return s.Do(nil)
}

// TimeUpdate records the remote player's position and lets the adapter
// sample it.
func (s *Session) TimeUpdate(current, total float64) View {
	return s.Do(func(a *vpaid.Adapter) {
		s.renderer.ReportTime(current, total)
		a.OnTimeUpdate()
	})
}

func (s *Session) view() View {
	return View{
		ID:         s.ID,
		State:      s.adapter.State().String(),
		Variant:    s.adapter.Variant().String(),
		Attributes: s.adapter.Snapshot(),
		Renderer:   s.renderer.State(),
	}
}

// retire unbinds the journal callbacks and stops the adapter. The deferred
// AdStopped then reaches observers only, so nothing is journaled after the
// session's journal is deleted.
func (s *Session) retire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range vpaid.Events {
		s.adapter.Unsubscribe(name)
	}
	if s.adapter.State() != vpaid.StateStopped {
		s.adapter.Stop()
	}
}

// expiry reports whether the session has been stopped past the TTL, or has
// outlived the maximum age.
func (s *Session) expiry(now time.Time, cfg Config) (expired, stale bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stoppedAt.IsZero() && now.Sub(s.stoppedAt) >= cfg.StoppedTTL {
		return true, false
	}
	if cfg.MaxAge > 0 && now.Sub(s.CreatedAt) >= cfg.MaxAge {
		return false, true
	}
	return false, false
}
