// Package api exposes the client surface as JSON-RPC 2.0 over HTTP.
// One POST endpoint carries every method; health and metrics are plain
// HTTP for probes and scrapers.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"microloan/go-client/internal/app"
	"microloan/go-client/internal/platform/ratelimiter"
)

const DefaultListenAddr = "127.0.0.1:8787"

type Server struct {
	httpServer *http.Server
	service    app.ClientAPI
	limiter    *ratelimiter.MapLimiter
	log        *slog.Logger
}

func NewServer(addr string, svc app.ClientAPI, limiter *ratelimiter.MapLimiter, log *slog.Logger) *Server {
	if addr == "" {
		addr = DefaultListenAddr
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		service: svc,
		limiter: limiter,
		log:     log,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/rpc", s.handleRPC)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
