// Package server exposes the privacy engine over HTTP for the
// surrounding application, plus the dashboard and audit stream.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dataveil/privacy-sentinel/internal/cache"
	"github.com/dataveil/privacy-sentinel/internal/config"
	"github.com/dataveil/privacy-sentinel/internal/dsr"
	"github.com/dataveil/privacy-sentinel/internal/engine"
	"github.com/dataveil/privacy-sentinel/internal/logger"
	"github.com/dataveil/privacy-sentinel/internal/web"
	"github.com/dataveil/privacy-sentinel/internal/websocket"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// RequestStore persists data-subject requests beyond the process
// lifetime. The in-memory workflow stays authoritative while the
// process lives; the store is written through on every change and read
// back for requests submitted before a restart.
type RequestStore interface {
	SaveRequest(ctx context.Context, req dsr.Request) error
	LoadRequest(ctx context.Context, requestID string) (*dsr.Request, error)
}

// Server is the HTTP front of the privacy engine.
type Server struct {
	config  *config.Config
	logger  *logger.Logger
	engine  *engine.Engine
	router  *mux.Router
	server  *http.Server
	wsHub   *websocket.Hub
	cache   *cache.DetectionCache
	store   RequestStore
	limiter *clientLimiter
}

// Options carries the optional collaborators the server exposes
// endpoints for.
type Options struct {
	Cache *cache.DetectionCache
	Store RequestStore
	Hub   *websocket.Hub
}

// New creates a server around an already-constructed engine.
func New(cfg *config.Config, eng *engine.Engine, opts Options, log *logger.Logger) *Server {
	s := &Server{
		config: cfg,
		logger: log.WithComponent("server"),
		engine: eng,
		router: mux.NewRouter(),
		wsHub:  opts.Hub,
		cache:  opts.Cache,
		store:  opts.Store,
	}

	if cfg.RateLimit.Enabled {
		s.limiter = newClientLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Info endpoint
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	// Dashboard endpoint - embedded HTML
	s.router.HandleFunc("/", web.ServeDashboard).Methods("GET")
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods("GET")

	// WebSocket endpoint for the audit stream
	if s.wsHub != nil && s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.wsHub.HandleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	if s.limiter != nil {
		api.Use(s.rateLimitMiddleware)
	}

	// Detection and anonymization
	api.HandleFunc("/detect", s.handleDetect).Methods("POST")
	api.HandleFunc("/anonymize/text", s.handleAnonymizeText).Methods("POST")
	api.HandleFunc("/anonymize/record", s.handleAnonymizeRecord).Methods("POST")

	// Crypto unit
	api.HandleFunc("/encrypt", s.handleEncrypt).Methods("POST")
	api.HandleFunc("/decrypt", s.handleDecrypt).Methods("POST")
	api.HandleFunc("/hash", s.handleHash).Methods("POST")
	api.HandleFunc("/pseudonymize", s.handlePseudonymize).Methods("POST")

	// Consent ledger
	api.HandleFunc("/consent", s.handleRecordConsent).Methods("POST")
	api.HandleFunc("/consent/{userID}/withdraw", s.handleWithdrawConsent).Methods("POST")
	api.HandleFunc("/consent/{userID}/history", s.handleConsentHistory).Methods("GET")
	api.HandleFunc("/consent/{userID}", s.handleCurrentConsent).Methods("GET")

	// Data subject requests
	api.HandleFunc("/requests", s.handleSubmitRequest).Methods("POST")
	api.HandleFunc("/requests/{requestID}/advance", s.handleAdvanceRequest).Methods("POST")
	api.HandleFunc("/requests/{requestID}", s.handleGetRequest).Methods("GET")

	// Compliance rules
	api.HandleFunc("/retention/{category}", s.handleRetentionLimit).Methods("GET")
	api.HandleFunc("/transfers/assess", s.handleTransferLegality).Methods("POST")

	// Cache administration
	if s.cache != nil {
		api.HandleFunc("/cache/stats", s.handleCacheStats).Methods("GET")
		api.HandleFunc("/cache", s.handleCacheClear).Methods("DELETE")
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting privacy engine server",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("rate_limiting", s.limiter != nil),
		zap.Bool("cache", s.cache != nil),
		zap.Bool("persistence", s.store != nil),
	)

	if s.wsHub != nil && s.config.WebSocket.Enabled {
		go s.wsHub.Run()
	}

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping privacy engine server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":           "privacy-sentinel",
		"version":        Version,
		"detectors":      s.engine.Detector().EnabledKinds(),
		"min_confidence": s.config.Privacy.MinConfidence,
	}
	if s.wsHub != nil {
		info["websocket"] = s.wsHub.GetStats()
	}
	writeJSON(w, http.StatusOK, info)
}

// Version is set at build time via -ldflags.
var Version = "dev"
