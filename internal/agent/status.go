package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Status is the body of GET /status.
type Status struct {
	Host      string            `json:"host"`
	Workers   int               `json:"workers"`
	Active    int               `json:"active"`
	Executors map[string]string `json:"executors"`
}

// Status reports the server's load and the availability of each executor.
func (s *Server) Status(ctx context.Context) Status {
	st := Status{
		Host:      s.cfg.Identity(),
		Workers:   s.cfg.ThreadNum,
		Active:    s.ActiveCount(),
		Executors: make(map[string]string),
	}
	for name, err := range s.registry.HealthCheckAll(ctx) {
		if err != nil {
			st.Executors[name] = err.Error()
		} else {
			st.Executors[name] = "ok"
		}
	}
	return st
}

// StatusHandler serves the read-only operational endpoints.
func (s *Server) StatusHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if s.isClosed() {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(HealthReply))
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.Status(r.Context()))
	})

	return r
}

// serveStatus runs the status endpoint on lis until ctx is done.
func (s *Server) serveStatus(ctx context.Context, lis net.Listener) {
	srv := &http.Server{
		Handler:           s.StatusHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("address", lis.Addr().String()).Msg("status endpoint starting")
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("status endpoint stopped")
	}
}
