// File: internal/service/server.go
package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/droidpilot/droidpilot-cli/internal/config"
	"github.com/droidpilot/droidpilot-cli/internal/observability"
)

// Server is the HTTP surface over the task manager: task start, SSE event
// streams, abort, status, device listing, and the websocket event feed.
type Server struct {
	cfg        *config.Config
	components *Components
	manager    *Manager
	hub        *EventHub
	logger     *zap.Logger

	// baseCtx bounds task runs to the server's lifetime rather than a single
	// request's. Set by Run.
	baseCtx context.Context
}

func NewServer(cfg *config.Config, components *Components) *Server {
	hub := NewEventHub()
	return &Server{
		cfg:        cfg,
		components: components,
		manager:    NewManager(components, hub),
		hub:        hub,
		logger:     observability.GetLogger().Named("server"),
	}
}

func (s *Server) taskContext() context.Context {
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

// Routes assembles the HTTP mux.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/tasks", s.handleStartTask)
		r.Get("/tasks", s.handleListTasks)
		r.Get("/tasks/{taskID}", s.handleTaskStatus)
		r.Get("/tasks/{taskID}/events", s.handleTaskEvents)
		r.Post("/tasks/{taskID}/abort", s.handleAbortTask)
		r.Get("/status", s.handleStatus)
		r.Get("/config", s.handleGetConfig)
		r.Get("/devices", s.handleListDevices)
	})
	r.Get("/ws", s.hub.HandleWS)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}

// Run serves until ctx is canceled, then drains with the configured
// shutdown timeout. In-flight task runs are aborted by the context chain
// and emit their terminal events before the process exits.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx

	srv := &http.Server{
		Addr:        s.cfg.Server.Addr,
		Handler:     s.Routes(),
		ReadTimeout: s.cfg.Server.ReadTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		s.logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
