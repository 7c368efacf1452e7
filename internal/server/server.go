// Package server exposes the dashboard read model and a few operator actions
// over a local HTTP gateway.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"algodesk/internal/config"
	"algodesk/internal/dashboard"
	"algodesk/internal/logging"
	"algodesk/internal/store"
)

// Actions is the subset of the dispatcher the gateway exposes.
type Actions interface {
	CancelOrder(ctx context.Context, accountID, orderID string) error
	CancelAllOrders(ctx context.Context, groupID string, orderIDs []string) error
	SquareOffAllByGroup(ctx context.Context, groupID string) error
	ToggleTrading(ctx context.Context, accountID string, desired bool) error
	InFlight(target string) bool
}

// ActionHistory reads the recorded action log.
type ActionHistory interface {
	GetActions(ctx context.Context, filter store.ActionFilter) ([]store.ActionEntry, error)
}

// Config holds server dependencies.
type Config struct {
	Server    config.ServerConfig
	Dashboard *dashboard.Dashboard
	Actions   Actions
	History   ActionHistory
	Log       zerolog.Logger
}

// Server is the local HTTP gateway.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	cfg     config.ServerConfig
	dash    *dashboard.Dashboard
	actions Actions
	history ActionHistory
	started time.Time
}

// New creates a server. Call Start to listen.
func New(cfg Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		log:     logging.WithComponent(cfg.Log, "server"),
		cfg:     cfg.Server,
		dash:    cfg.Dashboard,
		actions: cfg.Actions,
		history: cfg.History,
		started: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(40 * time.Second))

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/accounts", s.handleAccounts)
		r.Put("/accounts/{accountID}/trading", s.handleToggleTrading)

		r.Get("/groups", s.handleGroups)
		r.Get("/groups/{groupID}", s.handleGroup)
		r.Get("/groups/{groupID}/{tab}", s.handleGroupTab)
		r.Post("/groups/{groupID}/square-off", s.handleSquareOffAll)
		r.Post("/groups/{groupID}/cancel-all", s.handleCancelAll)

		r.Post("/orders/{accountID}/{orderID}/cancel", s.handleCancelOrder)

		r.Get("/strategies", s.handleStrategies)
		r.Get("/market", s.handleMarket)
		r.Get("/actions", s.handleActions)
	})
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.Addr).Msg("Starting HTTP gateway")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP gateway")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs each request and carries its id into the context
// so backend calls made on its behalf share it.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())
		ctx := logging.WithRequestID(r.Context(), reqID)
		ctx = logging.WithLogger(ctx, s.log.With().Str("request_id", reqID).Logger())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(ww, r.WithContext(ctx))

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", reqID).
			Msg("HTTP request")
	})
}
