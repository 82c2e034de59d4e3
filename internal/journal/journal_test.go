package journal

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/thenexusengine/tne_vpaid/internal/vpaid"
	"github.com/thenexusengine/tne_vpaid/pkg/redis"
)

func setupRedisJournal(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client, err := redis.New("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return mr, NewRedis(client, ttl)
}

func sampleEntries(sessionID string) []Entry {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return []Entry{
		{SessionID: sessionID, Event: vpaid.AdLoaded, At: at},
		{SessionID: sessionID, Event: vpaid.AdStarted, At: at.Add(time.Second)},
		{SessionID: sessionID, Event: vpaid.AdClickThru, Args: []any{"https://example.com", "", true}, At: at.Add(2 * time.Second)},
	}
}

func TestJournals_PreserveDispatchOrder(t *testing.T) {
	_, redisJournal := setupRedisJournal(t, time.Hour)

	journals := map[string]Journal{
		"redis":  redisJournal,
		"memory": NewMemory(),
	}

	for name, j := range journals {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, e := range sampleEntries("s1") {
				if err := j.Append(ctx, e); err != nil {
					t.Fatalf("Append failed: %v", err)
				}
			}
			if err := j.Append(ctx, Entry{SessionID: "s2", Event: vpaid.AdError}); err != nil {
				t.Fatalf("Append failed: %v", err)
			}

			got, err := j.Entries(ctx, "s1")
			if err != nil {
				t.Fatalf("Entries failed: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("Expected 3 entries, got %d", len(got))
			}
			want := []vpaid.EventName{vpaid.AdLoaded, vpaid.AdStarted, vpaid.AdClickThru}
			for i, e := range got {
				if e.Event != want[i] {
					t.Errorf("Entry %d: expected %s, got %s", i, want[i], e.Event)
				}
			}
			if len(got[2].Args) != 3 || got[2].Args[0] != "https://example.com" || got[2].Args[2] != true {
				t.Errorf("Expected click-through args preserved, got %v", got[2].Args)
			}

			if err := j.Delete(ctx, "s1"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			got, err = j.Entries(ctx, "s1")
			if err != nil {
				t.Fatalf("Entries failed: %v", err)
			}
			if len(got) != 0 {
				t.Errorf("Expected no entries after delete, got %d", len(got))
			}
		})
	}
}

func TestRedis_KeyAndTTL(t *testing.T) {
	mr, j := setupRedisJournal(t, 10*time.Minute)

	if err := j.Append(context.Background(), Entry{SessionID: "abc", Event: vpaid.AdLoaded}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if !mr.Exists("vpaid:journal:abc") {
		t.Fatal("Expected journal list under vpaid:journal:abc")
	}
	if ttl := mr.TTL("vpaid:journal:abc"); ttl != 10*time.Minute {
		t.Errorf("Expected TTL 10m, got %v", ttl)
	}
}

func TestRedis_CorruptEntry(t *testing.T) {
	mr, j := setupRedisJournal(t, time.Minute)
	mr.RPush(Key("bad"), "{not json")

	if _, err := j.Entries(context.Background(), "bad"); err == nil {
		t.Error("Expected decode error")
	}
}

func TestRedis_UnavailableServer(t *testing.T) {
	mr, j := setupRedisJournal(t, time.Minute)
	mr.Close()

	if err := j.Append(context.Background(), Entry{SessionID: "x", Event: vpaid.AdLoaded}); err == nil {
		t.Error("Expected error when Redis is down")
	}
}

func TestMemory_EntriesAreCopies(t *testing.T) {
	j := NewMemory()
	ctx := context.Background()
	j.Append(ctx, Entry{SessionID: "s", Event: vpaid.AdLoaded})

	got, _ := j.Entries(ctx, "s")
	got[0].Event = vpaid.AdError

	again, _ := j.Entries(ctx, "s")
	if again[0].Event != vpaid.AdLoaded {
		t.Error("Expected stored entry to be unaffected by caller mutation")
	}
}
