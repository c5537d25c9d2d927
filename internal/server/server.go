// Package server provides the HTTP server and routing for the bond valuation service.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aristath/bondcalc/internal/events"
	"github.com/aristath/bondcalc/internal/modules/session"
	"github.com/aristath/bondcalc/internal/modules/validation"
	"github.com/aristath/bondcalc/internal/modules/valuation"
)

// Config holds server configuration
type Config struct {
	Log          zerolog.Logger
	Port         int
	DevMode      bool
	Valuation    *valuation.Service
	Validator    *validation.Validator
	Sessions     *session.Registry
	EventManager *events.Manager

	// ValuationRateLimit is requests per second for POST /api/valuations
	ValuationRateLimit float64
}

// Server represents the HTTP server
type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	port    int
	devMode bool

	// baseCtx is cancelled when shutdown starts so SSE and websocket handlers return
	baseCtx    context.Context
	cancelBase context.CancelFunc

	valuationHandlers *ValuationHandlers
	sessionHandlers   *SessionHandlers
	systemHandlers    *SystemHandlers
	eventsStream      *EventsStreamHandler
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	log := cfg.Log.With().Str("component", "server").Logger()

	s := &Server{
		router:  chi.NewRouter(),
		log:     log,
		port:    cfg.Port,
		devMode: cfg.DevMode,
		valuationHandlers: NewValuationHandlers(
			cfg.Valuation,
			cfg.Validator,
			newLimiter(cfg.ValuationRateLimit),
			cfg.Log,
		),
		sessionHandlers: NewSessionHandlers(cfg.Sessions, cfg.DevMode, cfg.Log),
		systemHandlers:  NewSystemHandlers(cfg.Sessions, cfg.EventManager, cfg.Log),
	}
	if cfg.EventManager != nil {
		s.eventsStream = NewEventsStreamHandler(cfg.EventManager.Bus(), cfg.Log)
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())
	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		// no WriteTimeout: SSE and websocket responses stay open
		BaseContext: func(net.Listener) context.Context { return s.baseCtx },
	}
	s.server.RegisterOnShutdown(s.cancelBase)

	return s
}

// Handler returns the root handler, used by tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		if s.eventsStream != nil {
			r.Get("/events/stream", s.eventsStream.ServeHTTP)
		}

		r.Get("/system/status", s.systemHandlers.HandleSystemStatus)

		// bounded request handlers; streaming routes stay outside the timeout
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			if !s.devMode {
				r.Use(middleware.Compress(5))
			}

			r.Post("/valuations", s.valuationHandlers.HandleValuate)

			r.Post("/sessions", s.sessionHandlers.HandleCreate)
			r.Get("/sessions/{id}", s.sessionHandlers.HandleGet)
			r.Delete("/sessions/{id}", s.sessionHandlers.HandleDelete)
			r.Patch("/sessions/{id}/fields", s.sessionHandlers.HandleSetFields)
		})

		r.Get("/sessions/{id}/ws", s.sessionHandlers.HandleWebSocket)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.log, http.StatusOK, map[string]string{"status": "ok"})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// newLimiter builds a token bucket allowing perSecond requests with a matching burst.
// A non-positive rate disables limiting.
func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(math.Ceil(perSecond))
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// errorResponse is the JSON body of every error reply
type errorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, log zerolog.Logger, status int, code, message string) {
	writeJSON(w, log, status, errorResponse{Error: message, Code: code})
}
