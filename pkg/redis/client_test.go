package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client, err := New("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestNew_Success(t *testing.T) {
	_, client := setupTestRedis(t)

	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNew_InvalidURLs(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"not a URL", "not-a-valid-redis-url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.url)
			if err == nil {
				t.Error("Expected error")
			}
			if client != nil {
				t.Error("Expected nil client on error")
			}
		})
	}
}

func TestNewWithConfig_NilConfig(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client, err := NewWithConfig("redis://"+mr.Addr(), nil)
	if err != nil {
		t.Fatalf("Failed to create client with nil config: %v", err)
	}
	defer client.Close()
}

func TestNew_UnreachableServerStillReturnsClient(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.DialTimeout = 100 * time.Millisecond

	client, err := NewWithConfig("redis://127.0.0.1:1", cfg)
	if err != nil {
		t.Fatalf("Expected client despite unreachable server, got: %v", err)
	}
	defer client.Close()

	if err := client.Ping(context.Background()); err == nil {
		t.Error("Expected ping to fail")
	}
}

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()

	if cfg.PoolSize != 50 {
		t.Errorf("Expected PoolSize 50, got %d", cfg.PoolSize)
	}
	if cfg.MaxConnAge != 30*time.Minute {
		t.Errorf("Expected MaxConnAge 30min, got %v", cfg.MaxConnAge)
	}
}

func TestClient_HGet(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	mr.HSet("vpaid:api_keys", "key-1", "pub-1")

	got, err := client.HGet(ctx, "vpaid:api_keys", "key-1")
	if err != nil {
		t.Fatalf("HGet failed: %v", err)
	}
	if got != "pub-1" {
		t.Errorf("Expected 'pub-1', got '%s'", got)
	}

	missing, err := client.HGet(ctx, "vpaid:api_keys", "nope")
	if err != nil {
		t.Errorf("Expected no error for missing field, got: %v", err)
	}
	if missing != "" {
		t.Errorf("Expected empty string for missing field, got '%s'", missing)
	}
}

func TestClient_AppendWithTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	if err := client.AppendWithTTL(ctx, "list", time.Minute, "a", "b"); err != nil {
		t.Fatalf("AppendWithTTL failed: %v", err)
	}
	if err := client.AppendWithTTL(ctx, "list", time.Minute, "c"); err != nil {
		t.Fatalf("AppendWithTTL failed: %v", err)
	}

	got, err := client.LRange(ctx, "list", 0, -1)
	if err != nil {
		t.Fatalf("LRange failed: %v", err)
	}
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("Expected [a b c], got %v", got)
	}
	if ttl := mr.TTL("list"); ttl != time.Minute {
		t.Errorf("Expected TTL 1m, got %v", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if mr.Exists("list") {
		t.Error("Expected list to expire")
	}
}

func TestClient_AppendWithTTL_NoValues(t *testing.T) {
	mr, client := setupTestRedis(t)

	if err := client.AppendWithTTL(context.Background(), "list", time.Minute); err != nil {
		t.Fatalf("AppendWithTTL failed: %v", err)
	}
	if mr.Exists("list") {
		t.Error("Expected no list to be created")
	}
}

func TestClient_Del(t *testing.T) {
	mr, client := setupTestRedis(t)
	mr.RPush("list", "x")

	if err := client.Del(context.Background(), "list"); err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if mr.Exists("list") {
		t.Error("Expected list to be deleted")
	}
}

func TestClient_Ping_AfterServerClosed(t *testing.T) {
	mr, client := setupTestRedis(t)
	mr.Close()

	if err := client.Ping(context.Background()); err == nil {
		t.Error("Expected ping to fail after server closed")
	}
}

