package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

type ServerConfig struct {
	Addr        string        // ":3001"
	ReadTimeout time.Duration // header read only; sockets live longer
	IdleTimeout time.Duration
}

type Server struct {
	cfg ServerConfig
	srv *http.Server
}

// NewServer leaves WriteTimeout unset: it would cut hijacked WebSocket
// connections.
func NewServer(cfg ServerConfig, handler http.Handler) *Server {
	s := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	return &Server{cfg: cfg, srv: s}
}

// Run serves on lis until ctx is done, then shuts down with a 10s budget.
// Hijacked sockets are not tracked by Shutdown; the caller closes them.
func (s *Server) Run(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)

	go func() {
		slog.Info("http listening", "addr", lis.Addr().String())
		if err := s.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.srv.Shutdown(shCtx)
	case err := <-errCh:
		return err
	}
}
