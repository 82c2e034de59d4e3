package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/thenexusengine/tne_vpaid/internal/config"
	"github.com/thenexusengine/tne_vpaid/internal/endpoints"
	"github.com/thenexusengine/tne_vpaid/internal/journal"
	"github.com/thenexusengine/tne_vpaid/internal/metrics"
	"github.com/thenexusengine/tne_vpaid/internal/middleware"
	"github.com/thenexusengine/tne_vpaid/internal/session"
	"github.com/thenexusengine/tne_vpaid/internal/storage"
	"github.com/thenexusengine/tne_vpaid/pkg/logger"
	"github.com/thenexusengine/tne_vpaid/pkg/redis"
	"golang.org/x/sync/errgroup"
)

// Server represents the VPAID host bridge
type Server struct {
	config      *ServerConfig
	httpServer  *http.Server
	registry    prometheus.Registerer
	gatherer    prometheus.Gatherer
	metrics     *metrics.Metrics
	sessions    *session.Manager
	rateLimiter *middleware.RateLimiter
	db          *sql.DB
	creatives   *storage.CreativeStore
	catalog     *storage.Catalog
	redisClient *redis.Client
}

// NewServer creates a server registered against the default Prometheus registry
func NewServer(cfg *ServerConfig) (*Server, error) {
	return newServer(cfg, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

func newServer(cfg *ServerConfig, reg prometheus.Registerer, gatherer prometheus.Gatherer) (*Server, error) {
	s := &Server{
		config:   cfg,
		registry: reg,
		gatherer: gatherer,
	}

	if err := s.initialize(); err != nil {
		return nil, err
	}

	return s, nil
}

// initialize sets up all server components
func (s *Server) initialize() error {
	log := logger.Log

	log.Info().
		Str("port", s.config.Port).
		Dur("session_ttl", s.config.SessionTTL).
		Dur("tick_interval", s.config.TickInterval).
		Dur("stop_delay", s.config.StopDelay).
		Msg("Initializing VPAID host bridge")

	s.metrics = metrics.NewMetricsWithRegistry("vpaid", s.registry)

	// Database and Redis failures are non-fatal; the bridge runs on inline
	// AdParameters and an in-memory journal without them
	if err := s.initDatabase(); err != nil {
		log.Warn().Err(err).Msg("Database initialization failed, stored creatives disabled")
	}
	if err := s.initCatalog(); err != nil {
		log.Warn().Err(err).Msg("Creative catalog failed to load")
	}
	if err := s.initRedis(); err != nil {
		log.Warn().Err(err).Msg("Redis initialization failed, using in-memory journal")
	}

	s.initSessions()
	s.initHandlers()

	return nil
}

// initDatabase connects the creative store
func (s *Server) initDatabase() error {
	log := logger.Log

	if s.config.DatabaseConfig == nil {
		log.Info().Msg("DB_HOST not set, stored creatives disabled")
		return nil
	}

	dbCfg := s.config.DatabaseConfig
	db, err := storage.NewDBConnection(
		dbCfg.Host,
		dbCfg.Port,
		dbCfg.User,
		dbCfg.Password,
		dbCfg.Name,
		dbCfg.SSLMode,
	)
	if err != nil {
		return err
	}
	s.db = db
	s.creatives = storage.NewCreativeStore(db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if dbCfg.EnsureSchema {
		if err := s.creatives.EnsureSchema(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to ensure creatives schema")
		}
	}

	creatives, err := s.creatives.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load creatives from database")
	} else {
		log.Info().Int("count", len(creatives)).Msg("Creatives available from PostgreSQL")
	}

	return nil
}

// initCatalog loads the YAML creative catalog. With a database it seeds the
// creative store, otherwise it serves sessions directly.
func (s *Server) initCatalog() error {
	log := logger.Log

	if s.config.CreativesFile == "" {
		return nil
	}

	catalog, err := storage.LoadCatalog(s.config.CreativesFile)
	if err != nil {
		return err
	}

	if s.creatives == nil {
		s.catalog = catalog
		log.Info().Int("count", catalog.Len()).Str("file", s.config.CreativesFile).Msg("Serving creatives from catalog file")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	created, err := catalog.Seed(ctx, s.creatives)
	if err != nil {
		return err
	}
	log.Info().Int("created", created).Int("count", catalog.Len()).Msg("Seeded creatives from catalog file")
	return nil
}

// initRedis initializes the Redis client
func (s *Server) initRedis() error {
	log := logger.Log

	if s.config.RedisURL == "" {
		log.Info().Msg("REDIS_URL not set, Redis-backed features disabled")
		return nil
	}

	client, err := redis.New(s.config.RedisURL)
	if err != nil {
		return err
	}
	s.redisClient = client

	log.Info().Msg("Redis client initialized")
	return nil
}

// initSessions builds the session manager over the journal and creative store
func (s *Server) initSessions() {
	log := logger.Log

	var j journal.Journal = journal.NewMemory()
	if s.redisClient != nil {
		breakerCfg := journal.DefaultBreakerConfig()
		journalLog := logger.Component("journal")
		breakerCfg.OnStateChange = func(from, to string) {
			journalLog.Warn().
				Str("from", from).
				Str("to", to).
				Msg("Journal circuit breaker state changed")
		}
		j = journal.NewGuarded(journal.NewRedis(s.redisClient, s.config.JournalTTL), breakerCfg)
	}

	var creatives session.CreativeSource
	switch {
	case s.creatives != nil:
		creatives = s.creatives
	case s.catalog != nil:
		creatives = s.catalog
	}

	s.sessions = session.NewManager(s.config.ToSessionConfig(), j, creatives, s.metrics)

	log.Info().
		Bool("redis_journal", s.redisClient != nil).
		Bool("stored_creatives", s.creatives != nil).
		Bool("creative_catalog", s.catalog != nil).
		Msg("Session manager initialized")
}

// initHandlers initializes HTTP handlers and builds the handler chain
func (s *Server) initHandlers() {
	mux := http.NewServeMux()
	mux.Handle("GET /health", healthHandler())
	mux.Handle("GET /health/ready", readyHandler(s.dependencies()))
	mux.Handle("GET /metrics", metrics.HandlerFor(s.gatherer))
	endpoints.NewSessionHandler(s.sessions).Register(mux)

	var admin endpoints.CreativeAdmin
	if s.creatives != nil {
		admin = s.creatives
	}
	endpoints.NewCreativeAdminHandler(admin).Register(mux)

	s.httpServer = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      s.buildHandler(mux),
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}
}

// buildHandler builds the middleware chain
func (s *Server) buildHandler(mux *http.ServeMux) http.Handler {
	log := logger.Log

	auth := middleware.NewAuth(middleware.DefaultAuthConfig())
	auth.SetMetrics(s.metrics)
	if s.redisClient != nil {
		auth.SetKeyStore(s.redisClient)
	}
	sizeLimiter := middleware.NewSizeLimiter(middleware.DefaultSizeLimitConfig())
	s.rateLimiter = middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
	s.rateLimiter.SetMetrics(s.metrics)

	log.Info().
		Bool("auth_enabled", auth.IsEnabled()).
		Bool("redis_keys", s.redisClient != nil).
		Msg("Middleware chain built")

	// Logging -> Size Limit -> Auth -> Rate Limit -> Metrics -> Handler
	handler := http.Handler(mux)
	handler = s.metrics.Middleware(handler)
	handler = s.rateLimiter.Middleware(handler)
	handler = auth.Middleware(handler)
	handler = sizeLimiter.Middleware(handler)
	handler = loggingMiddleware(handler)

	return handler
}

type pinger interface {
	Ping(ctx context.Context) error
}

// dependencies lists what /health/ready checks. Unconfigured ones report disabled.
func (s *Server) dependencies() map[string]pinger {
	deps := map[string]pinger{"redis": nil, "postgres": nil}
	if s.redisClient != nil {
		deps["redis"] = s.redisClient
	}
	if s.creatives != nil {
		deps["postgres"] = s.creatives
	}
	return deps
}

// Start starts the HTTP server
func (s *Server) Start() error {
	logger.Log.Info().Str("addr", s.httpServer.Addr).Msg("Server listening")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then stops every session and closes
// the backing stores
func (s *Server) Shutdown(ctx context.Context) error {
	log := logger.Log
	log.Info().Msg("Starting graceful shutdown")

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}

	s.sessions.Close()

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing Redis client")
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing database")
		}
	}

	log.Info().Msg("Server stopped gracefully")
	return nil
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware assigns a request ID, carries it in the context for
// handler logs, and logs each request on completion
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		rl := logger.NewRequestLogger(requestID).
			WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote_addr", r.RemoteAddr).
			WithField("user_agent", r.UserAgent())

		ctx := logger.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		rl.LogComplete(wrapped.statusCode)
	})
}

// healthHandler returns a simple liveness check
func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   "1.0.0",
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(health); err != nil {
			logger.Log.Error().Err(err).Msg("failed to encode health response")
		}
	})
}

// readyHandler returns a readiness check with dependency verification.
// Dependencies are pinged concurrently. A nil dependency is reported as
// disabled and does not fail readiness.
func readyHandler(deps map[string]pinger) http.Handler {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), config.ReadyCheckTimeout)
		defer cancel()

		var (
			mu         sync.Mutex
			g          errgroup.Group
			checks     = make(map[string]interface{}, len(deps))
			allHealthy = true
		)

		for _, name := range names {
			dep := deps[name]
			if dep == nil {
				mu.Lock()
				checks[name] = map[string]interface{}{"status": "disabled"}
				mu.Unlock()
				continue
			}
			g.Go(func() error {
				err := dep.Ping(ctx)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					checks[name] = map[string]interface{}{
						"status": "unhealthy",
						"error":  err.Error(),
					}
					allHealthy = false
					return nil
				}
				checks[name] = map[string]interface{}{"status": "healthy"}
				return nil
			})
		}
		g.Wait()

		status := http.StatusOK
		if !allHealthy {
			status = http.StatusServiceUnavailable
		}

		response := map[string]interface{}{
			"ready":     allHealthy,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    checks,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Log.Error().Err(err).Msg("failed to encode readiness response")
		}
	})
}
