package control

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/kalshi-trader/internal/config"
	"github.com/rickgao/kalshi-trader/internal/engine"
	"github.com/rickgao/kalshi-trader/internal/model"
	"github.com/rickgao/kalshi-trader/internal/perf"
	"github.com/rickgao/kalshi-trader/internal/risk"
	"github.com/rickgao/kalshi-trader/internal/settings"
)

// Engine is the trading engine surface the control plane drives.
type Engine interface {
	Status() engine.Status
	StartTrading() error
	StopTrading()
	Reconcile(ctx context.Context) error
}

// Orders is the order-manager surface the control plane reads and drives.
type Orders interface {
	Orders() []model.Order
	Cancel(ctx context.Context, id uuid.UUID) error
}

// Check is a named dependency probe surfaced by the health endpoint.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Server is the operator HTTP API. It reads engine and ledger state but
// owns none of it; every mutation is delegated to the owning component.
type Server struct {
	cfg      config.ControlConfig
	engine   Engine
	risk     *risk.Manager
	perf     *perf.Tracker
	settings *settings.Store
	orders   Orders
	hub      *Hub
	checks   []Check
	logger   *slog.Logger

	router    chi.Router
	upgrader  websocket.Upgrader
	srv       *http.Server
	hubCancel context.CancelFunc
}

// NewServer wires the operator API around its collaborators. Health
// checks are optional probes for external dependencies.
func NewServer(cfg config.ControlConfig, eng Engine, riskMgr *risk.Manager, tracker *perf.Tracker, settingsStore *settings.Store, orders Orders, hub *Hub, logger *slog.Logger, checks ...Check) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		engine:   eng,
		risk:     riskMgr,
		perf:     tracker,
		settings: settingsStore,
		orders:   orders,
		hub:      hub,
		checks:   checks,
		logger:   logger.With("component", "control"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.originAllowed,
	}
	s.router = s.routes()
	return s
}

// Handler exposes the routed API, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the event hub and the HTTP listener. It returns once the
// listener goroutine is launched.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.hubCancel = cancel
	go s.hub.Run(ctx)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.Info("control server listening", "port", s.cfg.Port)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("control server error", "error", err)
		}
	}()
	return nil
}

// Stop drains the HTTP server, then stops the hub so WebSocket clients
// get a close frame.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.srv != nil {
		err = s.srv.Shutdown(ctx)
	}
	if s.hubCancel != nil {
		s.hubCancel()
	}
	return err
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/positions", s.handlePositions)
		r.Get("/balance", s.handleBalance)
		r.Get("/performance", s.handlePerformance)
		r.Get("/orders", s.handleOrders)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleUpdateSettings)
		r.Post("/settings/reset", s.handleResetSettings)

		r.Post("/trading/start", s.handleStartTrading)
		r.Post("/trading/stop", s.handleStopTrading)
		r.Post("/orders/{id}/cancel", s.handleCancelOrder)
		r.Post("/reconcile", s.handleReconcile)

		r.Get("/events", s.handleEvents)
	})

	return r
}

// requestLogger emits one line per request at debug level, errors at warn.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		level := slog.LevelDebug
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
