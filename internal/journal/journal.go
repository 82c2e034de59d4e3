// Package journal records the events each ad session dispatched to its host
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/thenexusengine/tne_vpaid/internal/vpaid"
)

// KeyPrefix prefixes the Redis list holding one session's entries
const KeyPrefix = "vpaid:journal:"

// Entry is one dispatched event
type Entry struct {
	SessionID string          `json:"session_id"`
	Event     vpaid.EventName `json:"event"`
	Args      []any           `json:"args,omitempty"`
	At        time.Time       `json:"at"`
}

// Journal stores entries in dispatch order per session
type Journal interface {
	Append(ctx context.Context, e Entry) error
	Entries(ctx context.Context, sessionID string) ([]Entry, error)
	Delete(ctx context.Context, sessionID string) error
}

// ListStore is the Redis surface the journal needs
type ListStore interface {
	AppendWithTTL(ctx context.Context, key string, ttl time.Duration, values ...interface{}) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	Del(ctx context.Context, keys ...string) error
}

// Redis keeps entries in a list per session that expires after ttl
type Redis struct {
	store ListStore
	ttl   time.Duration
}

// NewRedis creates a Redis-backed journal
func NewRedis(store ListStore, ttl time.Duration) *Redis {
	return &Redis{store: store, ttl: ttl}
}

func (r *Redis) Append(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	if err := r.store.AppendWithTTL(ctx, Key(e.SessionID), r.ttl, string(data)); err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

func (r *Redis) Entries(ctx context.Context, sessionID string) ([]Entry, error) {
	raw, err := r.store.LRange(ctx, Key(sessionID), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *Redis) Delete(ctx context.Context, sessionID string) error {
	return r.store.Del(ctx, Key(sessionID))
}

// Key returns the Redis key for a session's journal
func Key(sessionID string) string {
	return KeyPrefix + sessionID
}

// Memory keeps entries in process. Used when Redis is not configured.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string][]Entry
}

// NewMemory creates an in-memory journal
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string][]Entry)}
}

func (m *Memory) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[e.SessionID] = append(m.sessions[e.SessionID], e)
	return nil
}

func (m *Memory) Entries(_ context.Context, sessionID string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Entry{}, m.sessions[sessionID]...), nil
}

func (m *Memory) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}
