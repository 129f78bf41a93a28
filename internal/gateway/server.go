// Package gateway provides the HTTP surface: a synchronous ask endpoint,
// a WebSocket event stream, and health checks.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"medrun/internal/config"
	"medrun/internal/gateway/handlers"
	"medrun/internal/gateway/middleware"
	"medrun/internal/gateway/websocket"
	"medrun/pkg/logger"
)

// Server is the HTTP gateway server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	cfg        *config.Config
	runner     handlers.Runner
}

// NewServer wires routes and middleware around the given runner.
func NewServer(cfg *config.Config, runner handlers.Runner, version string) *Server {
	router := mux.NewRouter()

	// Recovery -> Logging -> CORS
	handler := middleware.Recovery(
		middleware.Logging(
			middleware.CORS(router),
		),
	)

	s := &Server{
		httpServer: &http.Server{
			Addr:        fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
			Handler:     handler,
			ReadTimeout: 60 * time.Second,
			IdleTimeout: 120 * time.Second,
		},
		router: router,
		cfg:    cfg,
		runner: runner,
	}
	s.routes(version)
	return s
}

func (s *Server) routes(version string) {
	s.router.HandleFunc("/health", handlers.HealthHandler(version)).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", handlers.HealthHandler(version)).Methods(http.MethodGet)
	api.HandleFunc("/ask", handlers.AskHandler(s.runner)).Methods(http.MethodPost)

	s.router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWS(s.runner, w, r)
	})
}

// Handler exposes the middleware-wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start runs the server until Shutdown or a listen error.
func (s *Server) Start() error {
	handlers.InitStartTime()
	logger.Info().Str("addr", s.httpServer.Addr).Msg("gateway listening")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway listen: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info().Msg("gateway shutting down")
	return s.httpServer.Shutdown(ctx)
}
