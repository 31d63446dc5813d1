package grpcx

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-checked service besides the overall "" entry.
const ServiceName = "collab.relay.v1.Relay"

// Server exposes grpc.health.v1.Health for orchestrators. It reports
// SERVING while the relay accepts sockets and NOT_SERVING once shutdown
// has begun.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

func NewServer() *Server {
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(StreamServerInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	s := &Server{grpc: gs, health: hs}
	s.SetServing(false)
	return s
}

func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Serve marks the relay SERVING and blocks until Stop.
func (s *Server) Serve(lis net.Listener) error {
	slog.Info("grpc listening", "addr", lis.Addr().String())
	s.SetServing(true)
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop flips health to NOT_SERVING and drains in-flight calls, falling
// back to a hard stop when ctx expires first.
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("grpc graceful stop timed out")
		s.grpc.Stop()
	}
}
