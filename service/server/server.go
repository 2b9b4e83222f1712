package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/solkit/service/config"
	"github.com/brojonat/solkit/service/metrics"
	natspkg "github.com/brojonat/solkit/service/nats"
	"github.com/brojonat/solkit/service/solana"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP server for the transaction service.
type Server struct {
	addr      string
	cfg       *config.Config
	codec     *solana.Codec
	journal   Journal
	publisher natspkg.Publisher
	events    natspkg.Subscriber
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The journal is optional - if nil, lookup endpoints answer 404 and nothing is persisted.
// The publisher is optional - if nil, no transaction events are published.
// The events subscriber is optional - if nil, streaming endpoints won't be available.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(cfg *config.Config, codec *solana.Codec, journal Journal, publisher natspkg.Publisher, events natspkg.Subscriber, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:      cfg.ServerAddr,
		cfg:       cfg,
		codec:     codec,
		journal:   journal,
		publisher: publisher,
		events:    events,
		metrics:   m,
		logger:    logger,
	}
}

// Handler returns the routed handler, wrapped with CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	rec := &recorder{journal: s.journal, publisher: s.publisher, logger: s.logger}
	maxBody := s.cfg.MaxRequestBodyBytes

	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	// Transaction routes
	route("POST /api/v1/transactions", "/api/v1/transactions", handleBuildTransaction(s.codec, rec, maxBody, s.logger))
	route("POST /api/v1/transactions/sign", "/api/v1/transactions/sign", handleSignTransaction(s.codec, rec, maxBody, s.logger))
	route("POST /api/v1/transactions/decode", "/api/v1/transactions/decode", handleDecodeTransaction(s.codec, maxBody, s.logger))
	route("GET /api/v1/transactions/{id}", "/api/v1/transactions/{id}", handleGetTransaction(s.journal, s.logger))
	route("GET /api/v1/transactions", "/api/v1/transactions", handleListTransactions(s.journal, s.logger))

	// Address routes
	route("GET /api/v1/addresses/{address}", "/api/v1/addresses/{address}", handleValidateAddress(s.codec))
	route("GET /api/v1/addresses/{address}/token-accounts/{mint}", "/api/v1/addresses/{address}/token-accounts/{mint}", handleTokenAccount(s.logger))

	// Streaming routes (if an event subscriber is configured)
	if s.events != nil {
		route("GET /api/v1/stream/transactions", "/api/v1/stream/transactions", handleStreamTransactions(s.events, s.logger))
		route("GET /api/v1/stream/transactions/{address}", "/api/v1/stream/transactions/{address}", handleStreamTransactions(s.events, s.logger))
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	if s.journal == nil {
		s.logger.Warn("transaction journal not configured, lookup endpoints disabled")
	}
	if s.publisher == nil {
		s.logger.Warn("NATS publisher not configured, transaction events disabled")
	}
	if s.events == nil {
		s.logger.Warn("NATS subscriber not configured, streaming endpoints disabled")
	}

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
