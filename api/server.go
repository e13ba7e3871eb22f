// Package api serves the marketplace over HTTP: REST routes for the
// feed, catalog and purchases, a GraphQL query endpoint and a
// WebSocket notification stream.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/neuron-labs/marketd/api/graphql"
	apimiddleware "github.com/neuron-labs/marketd/api/middleware"
	"github.com/neuron-labs/marketd/api/websocket"
	"github.com/neuron-labs/marketd/assistant"
	"github.com/neuron-labs/marketd/catalog"
	"github.com/neuron-labs/marketd/feed"
	"github.com/neuron-labs/marketd/purchase"
	"github.com/neuron-labs/marketd/storage"
)

// Deps bundles the services the API serves
type Deps struct {
	Aggregator *feed.Aggregator
	Catalog    catalog.Store
	Source     *catalog.SourceClient
	Assistant  *assistant.Assistant
	Sequencer  *purchase.Sequencer
	Receipts   storage.ReceiptStore
}

// Server represents the API server
type Server struct {
	config   *Config
	logger   *zap.Logger
	deps     Deps
	router   *chi.Mux
	server   *http.Server
	wsServer *websocket.Server
}

// NewServer creates a new API server
func NewServer(config *Config, logger *zap.Logger, deps Deps) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Aggregator == nil || deps.Catalog == nil {
		return nil, fmt.Errorf("aggregator and catalog are required")
	}

	s := &Server{
		config: config,
		logger: logger,
		deps:   deps,
		router: chi.NewRouter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s, nil
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware() {
	// Recovery must be first
	s.router.Use(apimiddleware.Recovery(s.logger))
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apimiddleware.Logger(s.logger))

	if s.config.EnableRateLimit {
		s.router.Use(apimiddleware.RateLimit(
			s.config.RateLimitPerSecond,
			s.config.RateLimitBurst,
			s.logger,
		))
		s.logger.Info("rate limiting enabled",
			zap.Float64("rate_per_second", s.config.RateLimitPerSecond),
			zap.Int("burst", s.config.RateLimitBurst),
		)
	}

	if s.config.EnableCORS {
		s.router.Use(s.corsMiddleware)
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		allowed := false
		for _, allowedOrigin := range s.config.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, Upgrade, Connection")
			w.Header().Set("Access-Control-Max-Age", "300")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	if s.config.EnableWebSocket {
		s.logger.Info("WebSocket notifications enabled", zap.String("path", s.config.WebSocketPath))
		s.wsServer = websocket.NewServer(s.logger)
		s.router.Get(s.config.WebSocketPath, s.wsServer.ServeHTTP)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/version", s.handleVersion)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/listings", func(r chi.Router) {
		r.Get("/", s.handleListings)
		r.Get("/{tokenID}", s.handleListing)
		r.Post("/{tokenID}/purchase", s.handlePurchase)
	})

	s.router.Route("/contracts/{author}/{slug}", func(r chi.Router) {
		r.Get("/", s.handleContract)
		r.Post("/ask", s.handleAsk)
	})

	s.router.Get("/receipts", s.handleReceipts)
	s.router.Get("/receipts/pending", s.handlePendingReceipts)

	if s.config.EnableGraphQL {
		gqlHandler, err := graphql.NewHandler(s.deps.Aggregator, s.deps.Catalog, s.deps.Receipts, s.logger)
		if err != nil {
			s.logger.Error("failed to create GraphQL handler", zap.Error(err))
		} else {
			s.logger.Info("GraphQL API enabled", zap.String("path", s.config.GraphQLPath))
			s.router.Handle(s.config.GraphQLPath, gqlHandler)
		}
	}
}

// NotificationHub returns the WebSocket hub, or nil when the
// WebSocket API is disabled.
func (s *Server) NotificationHub() *websocket.Hub {
	if s.wsServer == nil {
		return nil
	}
	return s.wsServer.Hub()
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info("starting API server",
		zap.String("address", s.config.Address()),
		zap.Bool("graphql", s.config.EnableGraphQL),
		zap.Bool("websocket", s.config.EnableWebSocket),
	)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the API server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")

	if s.wsServer != nil {
		s.wsServer.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped gracefully")
	return nil
}

// Router returns the underlying chi router (for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
