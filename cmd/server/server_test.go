package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/thenexusengine/tne_vpaid/internal/journal"
	"github.com/thenexusengine/tne_vpaid/pkg/logger"
)

func init() {
	// Initialize logger for tests
	logger.Init(logger.Config{
		Level:      "error", // Only show errors in tests
		Format:     "json",
		TimeFormat: time.RFC3339,
	})
}

func testConfig() *ServerConfig {
	return &ServerConfig{
		Port:          "8080",
		SessionTTL:    time.Minute,
		SessionMaxAge: time.Hour,
		TickInterval:  10 * time.Millisecond,
		StopDelay:     time.Millisecond,
		JournalTTL:    time.Hour,
	}
}

// newTestServer builds a server on a private registry so tests do not
// collide on metric registration
func newTestServer(t *testing.T, cfg *ServerConfig) *Server {
	t.Helper()
	t.Setenv("AUTH_ENABLED", "false")
	t.Setenv("RATE_LIMIT_ENABLED", "false")

	reg := prometheus.NewRegistry()
	server, err := newServer(cfg, reg, reg)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(ctx)
	})
	return server
}

func serve(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)
	return rr
}

func TestNewServer_MinimalConfig(t *testing.T) {
	server := newTestServer(t, testConfig())

	if server.httpServer == nil {
		t.Fatal("Expected HTTP server to be initialized")
	}
	if server.httpServer.Addr != ":8080" {
		t.Errorf("Expected addr ':8080', got '%s'", server.httpServer.Addr)
	}
	if server.metrics == nil {
		t.Error("Expected metrics to be initialized")
	}
	if server.sessions == nil {
		t.Error("Expected session manager to be initialized")
	}
	if server.rateLimiter == nil {
		t.Error("Expected rate limiter to be initialized")
	}
	if server.redisClient != nil || server.creatives != nil {
		t.Error("Expected Redis and database to be disabled")
	}
}

func TestNewServer_WithRedisJournal(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	cfg := testConfig()
	cfg.RedisURL = "redis://" + mr.Addr()
	server := newTestServer(t, cfg)

	if server.redisClient == nil {
		t.Fatal("Expected Redis client")
	}

	rr := serve(t, server, http.MethodPost, "/v1/sessions",
		`{"ad_parameters":"{\"videos\":[{\"url\":\"a.mp4\",\"mimetype\":\"video/mp4\"}]}"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var view struct {
		ID string `json:"id"`
	}
	json.NewDecoder(rr.Body).Decode(&view)

	if !mr.Exists(journal.Key(view.ID)) {
		t.Error("Expected AdLoaded journaled to Redis")
	}
	if ttl := mr.TTL(journal.Key(view.ID)); ttl != time.Hour {
		t.Errorf("Expected journal TTL 1h, got %v", ttl)
	}
}

func TestNewServer_WithCreativeCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creatives.yaml")
	catalog := "creatives:\n  - id: preroll\n    skippable: true\n    ad_parameters: '{\"videos\":[{\"url\":\"a.mp4\",\"mimetype\":\"video/mp4\"}]}'\n"
	if err := os.WriteFile(path, []byte(catalog), 0o644); err != nil {
		t.Fatalf("Failed to write catalog: %v", err)
	}

	cfg := testConfig()
	cfg.CreativesFile = path
	server := newTestServer(t, cfg)

	if server.catalog == nil {
		t.Fatal("Expected catalog to serve creatives without a database")
	}

	rr := serve(t, server, http.MethodPost, "/v1/sessions", `{"creative_id":"preroll","width":640,"height":360}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var view struct {
		Attributes struct {
			SkippableState bool `json:"skippable_state"`
		} `json:"attributes"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&view); err != nil {
		t.Fatalf("Failed to decode session: %v", err)
	}
	if !view.Attributes.SkippableState {
		t.Error("Expected catalog settings to apply")
	}

	if rr := serve(t, server, http.MethodPost, "/v1/sessions", `{"creative_id":"unknown"}`); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown creative, got %d", rr.Code)
	}
}

func TestNewServer_BadCreativeCatalog(t *testing.T) {
	cfg := testConfig()
	cfg.CreativesFile = filepath.Join(t.TempDir(), "missing.yaml")
	server := newTestServer(t, cfg)

	if server.catalog != nil {
		t.Error("Expected no catalog when the file cannot be read")
	}
}

func TestServer_HealthHandler(t *testing.T) {
	handler := healthHandler()

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got '%v'", response["status"])
	}
	if _, ok := response["timestamp"]; !ok {
		t.Error("Expected 'timestamp' field in response")
	}
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestServer_ReadyHandler(t *testing.T) {
	tests := []struct {
		name       string
		deps       map[string]pinger
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "all disabled",
			deps:       map[string]pinger{"redis": nil, "postgres": nil},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"redis": "disabled", "postgres": "disabled"},
		},
		{
			name:       "healthy",
			deps:       map[string]pinger{"redis": stubPinger{}, "postgres": nil},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"redis": "healthy", "postgres": "disabled"},
		},
		{
			name:       "unhealthy",
			deps:       map[string]pinger{"redis": stubPinger{}, "postgres": stubPinger{err: errors.New("connection refused")}},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"redis": "healthy", "postgres": "unhealthy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			readyHandler(tt.deps).ServeHTTP(rr, httptest.NewRequest("GET", "/health/ready", nil))

			if rr.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, rr.Code)
			}

			var response struct {
				Ready  bool                         `json:"ready"`
				Checks map[string]map[string]string `json:"checks"`
			}
			if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if response.Ready != (tt.wantStatus == http.StatusOK) {
				t.Errorf("Expected ready=%v", tt.wantStatus == http.StatusOK)
			}
			for name, want := range tt.wantChecks {
				if got := response.Checks[name]["status"]; got != want {
					t.Errorf("%s: expected %s, got %s", name, want, got)
				}
			}
		})
	}
}

func TestServer_ReadyHandler_RedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	cfg := testConfig()
	cfg.RedisURL = "redis://" + mr.Addr()
	server := newTestServer(t, cfg)

	if rr := serve(t, server, http.MethodGet, "/health/ready", ""); rr.Code != http.StatusOK {
		t.Errorf("Expected 200 with Redis up, got %d", rr.Code)
	}

	mr.Close()
	if rr := serve(t, server, http.MethodGet, "/health/ready", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 with Redis down, got %d", rr.Code)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var seen string
	handler := loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Context().Value(logger.RequestIDKey).(string)
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	requestID := rr.Header().Get("X-Request-ID")
	if requestID == "" {
		t.Error("Expected X-Request-ID header to be set")
	}
	if seen != requestID {
		t.Errorf("Expected request ID %q in context, got %q", requestID, seen)
	}
	if rr.Code != http.StatusTeapot {
		t.Errorf("Expected status to pass through, got %d", rr.Code)
	}
}

func TestLoggingMiddleware_WithExistingRequestID(t *testing.T) {
	handler := loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", "existing-id-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-ID"); got != "existing-id-123" {
		t.Errorf("Expected request ID 'existing-id-123', got '%s'", got)
	}
}

func TestResponseWriter_WriteHeader(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rr, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)

	if rw.statusCode != http.StatusNotFound {
		t.Errorf("Expected status code 404, got %d", rw.statusCode)
	}
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected underlying writer to receive 404, got %d", rr.Code)
	}
}

func TestServer_AllRoutes(t *testing.T) {
	server := newTestServer(t, testConfig())

	rr := serve(t, server, http.MethodPost, "/v1/handshake", `{"version":"2.0"}`)
	if rr.Code != http.StatusOK {
		t.Errorf("handshake: expected 200, got %d", rr.Code)
	}

	rr = serve(t, server, http.MethodPost, "/v1/sessions",
		`{"ad_parameters":"{\"videos\":[{\"url\":\"a.mp4\",\"mimetype\":\"video/mp4\"}]}","width":640,"height":360}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var view struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&view); err != nil {
		t.Fatalf("Failed to decode session: %v", err)
	}

	routes := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/health/ready", http.StatusOK},
		{http.MethodPost, "/v1/sessions/" + view.ID + "/start", http.StatusOK},
		{http.MethodGet, "/v1/sessions/" + view.ID, http.StatusOK},
		{http.MethodGet, "/v1/sessions/" + view.ID + "/events", http.StatusOK},
		{http.MethodGet, "/v1/sessions/missing", http.StatusNotFound},
		{http.MethodDelete, "/v1/sessions/" + view.ID, http.StatusMethodNotAllowed},
		{http.MethodGet, "/admin/creatives", http.StatusServiceUnavailable},
		{http.MethodGet, "/metrics", http.StatusOK},
	}

	for _, route := range routes {
		if rr := serve(t, server, route.method, route.path, ""); rr.Code != route.want {
			t.Errorf("%s %s: expected %d, got %d", route.method, route.path, route.want, rr.Code)
		}
	}

	rr = serve(t, server, http.MethodGet, "/metrics", "")
	body := rr.Body.String()
	for _, want := range []string{
		`vpaid_events_dispatched_total{event="AdStarted",variant="linear"} 1`,
		`vpaid_active_sessions 1`,
		`path="POST /v1/sessions"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected metrics output to contain %s", want)
		}
	}
}

func TestServer_BodySizeLimit(t *testing.T) {
	t.Setenv("MAX_REQUEST_SIZE", "64")
	server := newTestServer(t, testConfig())

	body := `{"ad_parameters":"` + strings.Repeat("x", 100) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d", rr.Code)
	}
}

func TestServer_AuthEnabled(t *testing.T) {
	reg := prometheus.NewRegistry()
	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("API_KEYS", "k1:player-a")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	server, err := newServer(testConfig(), reg, reg)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	defer server.Shutdown(context.Background())

	if rr := serve(t, server, http.MethodGet, "/health", ""); rr.Code != http.StatusOK {
		t.Errorf("Expected /health to bypass auth, got %d", rr.Code)
	}
	if rr := serve(t, server, http.MethodGet, "/v1/sessions/x", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/x", nil)
	req.Header.Set("X-API-Key", "k1")
	rr := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected authenticated request to reach the handler, got %d", rr.Code)
	}
}

func TestServer_Shutdown(t *testing.T) {
	reg := prometheus.NewRegistry()
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	server, err := newServer(testConfig(), reg, reg)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	rr := serve(t, server, http.MethodPost, "/v1/sessions",
		`{"ad_parameters":"{\"videos\":[{\"url\":\"a.mp4\",\"mimetype\":\"video/mp4\"}]}"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rr.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if server.sessions.Len() != 0 {
		t.Errorf("Expected sessions closed, got %d", server.sessions.Len())
	}
}
