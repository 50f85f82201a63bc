// Package server exposes health, metrics and loop status over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"solana-pnl-bot/internal/loop"
	"solana-pnl-bot/internal/observability"
)

const shutdownTimeout = 5 * time.Second

// StatusSource reports the trading loop state.
type StatusSource interface {
	Status() loop.Status
}

// Options configures a Server.
type Options struct {
	Addr    string
	Wallet  string
	Status  StatusSource
	Logger  *zap.Logger
	Started time.Time
}

// Server is the operator HTTP endpoint.
type Server struct {
	opts   Options
	logger *zap.Logger
	router chi.Router
}

// New creates a Server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Started.IsZero() {
		opts.Started = time.Now()
	}
	s := &Server{opts: opts, logger: opts.Logger.With(zap.String("component", "http"))}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			s.logger.Debug("write health response", zap.Error(err))
		}
	})
	r.Handle("/metrics", observability.Handler())
	r.Get("/status", s.handleStatus)
	return r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Wallet string `json:"wallet"`
	Uptime string `json:"uptime"`
	loop.Status
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Wallet: s.opts.Wallet,
		Uptime: time.Since(s.opts.Started).Round(time.Second).String(),
		Status: s.opts.Status.Status(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("encode status", zap.Error(err))
	}
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.opts.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", zap.Error(err))
		return err
	}
	return nil
}
