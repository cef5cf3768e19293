// Package agent implements the batch agent: a socket listener that serves
// health checks and path listings, and runs batch groups on behalf of the
// management server.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"batch-agent/internal/config"
	"batch-agent/internal/notify"
	"batch-agent/pkg/executor"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("agent: server closed")

// Server accepts connections and serves each on a fixed-size worker pool.
type Server struct {
	cfg        config.Agent
	registry   *executor.Registry
	dispatcher *Dispatcher

	mu       sync.Mutex
	listener net.Listener
	closed   bool

	active   int64
	loopDone chan struct{}
	poolDone chan struct{}
}

// NewServer wires the agent components from cfg.
func NewServer(cfg config.Agent, registry *executor.Registry, notifier notify.Notifier) *Server {
	runner := executor.NewRunner(registry, cfg.ExecTimeout)
	reporter := NewSocketReporter(cfg, notifier)
	return NewServerWith(cfg, registry, NewBatchRunner(runner, reporter))
}

// NewServerWith creates a server around an existing batch runner.
func NewServerWith(cfg config.Agent, registry *executor.Registry, batch *BatchRunner) *Server {
	return &Server{
		cfg:      cfg,
		registry: registry,
		dispatcher: NewDispatcher(DispatcherConfig{
			ReadTimeout:    cfg.ReadTimeout,
			BatchPath:      cfg.BatchPath,
			RecursivePaths: cfg.PathRecursive,
		}, batch),
		loopDone: make(chan struct{}),
		poolDone: make(chan struct{}),
	}
}

// Run listens on the configured port and serves until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.checkExecutors(ctx)

	if s.cfg.StatusAddr != "" {
		statusLis, err := net.Listen("tcp", s.cfg.StatusAddr)
		if err != nil {
			lis.Close()
			return fmt.Errorf("status listen: %w", err)
		}
		go s.serveStatus(ctx, statusLis)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(ctx, lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	return s.Shutdown(context.Background())
}

// Serve accepts connections on lis until it is closed. Each connection is
// handled by one pool worker; when all workers are busy the accept loop waits.
// Jobs run under a context detached from ctx cancellation, so stopping the
// server never interrupts a running batch.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		lis.Close()
		return ErrServerClosed
	}
	s.listener = lis
	s.mu.Unlock()

	log.Info().
		Str("address", lis.Addr().String()).
		Str("host", s.cfg.Identity()).
		Int("workers", s.cfg.ThreadNum).
		Msg("agent server starting")

	jobCtx := context.WithoutCancel(ctx)
	p := pool.New().WithMaxGoroutines(s.cfg.ThreadNum)

	defer func() {
		close(s.loopDone)
		go func() {
			p.Wait()
			close(s.poolDone)
		}()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) && s.isClosed() {
				return ErrServerClosed
			}
			log.Error().Err(err).Msg("accept failed, listener stopped")
			return fmt.Errorf("accept: %w", err)
		}

		atomic.AddInt64(&s.active, 1)
		p.Go(func() {
			defer atomic.AddInt64(&s.active, -1)
			s.dispatcher.Handle(jobCtx, conn)
		})
	}
}

// ActiveCount returns the number of connections being served.
func (s *Server) ActiveCount() int {
	return int(atomic.LoadInt64(&s.active))
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting connections and waits for in-flight work until
// ctx expires. Work still running at that point is left to finish on its own.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	lis := s.listener
	s.mu.Unlock()

	if already {
		return nil
	}

	log.Info().Str("host", s.cfg.Identity()).Msg("shutdown initiated")
	if lis == nil {
		return nil
	}
	if err := lis.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Warn().Err(err).Msg("listener close failed")
	}

	<-s.loopDone
	log.Info().Int("active_requests", s.ActiveCount()).Msg("draining requests")
	if !s.WaitForDrain(ctx) {
		log.Warn().Int("active_requests", s.ActiveCount()).Msg("shutdown deadline reached with requests in flight")
		return ctx.Err()
	}

	log.Info().Str("host", s.cfg.Identity()).Msg("shutdown complete")
	return nil
}

// WaitForDrain waits for all pool workers to finish. It reports false if ctx
// expired first.
func (s *Server) WaitForDrain(ctx context.Context) bool {
	select {
	case <-s.poolDone:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// checkExecutors logs interpreters that are not usable on this host.
func (s *Server) checkExecutors(ctx context.Context) {
	for name, err := range s.registry.HealthCheckAll(ctx) {
		if err != nil {
			log.Warn().Err(err).Str("executor", name).Msg("executor unavailable")
		}
	}
}
