// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	handler "github.com/newthinker/paperdesk/internal/api/handler/api"
	"github.com/newthinker/paperdesk/internal/api/middleware"
	"github.com/newthinker/paperdesk/internal/api/response"
	"github.com/newthinker/paperdesk/internal/app"
	"github.com/newthinker/paperdesk/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP server for paperdesk
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	router     *chi.Mux
	app        *app.App
}

// Config holds server configuration
type Config struct {
	Host   string
	Port   int
	APIKey string
	// MetricsPath is where Metrics is exposed. Empty disables the endpoint.
	MetricsPath string
	Metrics     *metrics.Registry
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, a *app.App, logger *zap.Logger) (*Server, error) {
	if a == nil {
		return nil, fmt.Errorf("app is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	router := chi.NewRouter()
	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
		router: router,
		app:    a,
	}

	s.setupMiddleware(cfg)
	s.setupRoutes(cfg)
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(cfg Config) {
	s.router.Use(chimw.Recoverer)
	s.router.Use(metrics.LoggingMiddleware(s.logger.Named("http")))
	if cfg.Metrics != nil {
		s.router.Use(metrics.HTTPMiddleware(cfg.Metrics))
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders: []string{metrics.RequestIDHeader},
		MaxAge:         300,
	}))
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config) {
	quotes := handler.NewQuotesHandler(s.app)
	watchlist := handler.NewWatchlistHandler(s.app)
	alerts := handler.NewAlertsHandler(s.app)
	account := handler.NewAccountHandler(s.app)
	refresh := handler.NewRefreshHandler(s.app)

	if cfg.Metrics != nil && cfg.MetricsPath != "" {
		s.router.Handle(cfg.MetricsPath, promhttp.HandlerFor(cfg.Metrics, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(middleware.APIKeyAuth(cfg.APIKey))

			r.Get("/quotes", quotes.List)
			r.Post("/quotes/{ticker}/refresh", func(w http.ResponseWriter, r *http.Request) {
				quotes.Refresh(w, r, chi.URLParam(r, "ticker"))
			})

			r.Route("/watchlist", func(r chi.Router) {
				r.Get("/", watchlist.List)
				r.Post("/", watchlist.Add)
				r.Delete("/{ticker}", func(w http.ResponseWriter, r *http.Request) {
					watchlist.Remove(w, r, chi.URLParam(r, "ticker"))
				})
			})

			r.Route("/alerts", func(r chi.Router) {
				r.Get("/", alerts.List)
				r.Post("/", alerts.Create)
				r.Post("/check", alerts.Check)
				r.Post("/clear-triggered", alerts.ClearTriggered)
				r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
					alerts.Get(w, r, chi.URLParam(r, "id"))
				})
				r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
					alerts.Delete(w, r, chi.URLParam(r, "id"))
				})
			})

			r.Get("/account", account.Get)
			r.Post("/account/reset", account.Reset)
			r.Post("/orders", account.PlaceOrder)
			r.Get("/trades", account.Trades)
			r.Get("/trades/export", account.Export)

			r.Get("/refresh", refresh.Get)
			r.Put("/refresh", refresh.Update)
			r.Post("/refresh/run", refresh.Run)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.app.GetStats()
	stats["status"] = "ok"
	response.JSON(w, http.StatusOK, stats)
}
