// Package health exposes a gRPC health endpoint that reports whether the
// filesystem is mounted.
package health

import (
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Service is the name the filesystem status is reported under. The empty
// service name reports the same status.
const Service = "ytfs.Filesystem"

// Server serves grpc.health.v1 on a TCP address.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	logger     *slog.Logger
}

// NewServer listens on addr. The status starts as NOT_SERVING.
func NewServer(addr string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("health listen on %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, hs)

	// Reflection for debugging with grpcurl
	reflection.Register(grpcServer)

	s := &Server{
		grpcServer: grpcServer,
		health:     hs,
		listener:   lis,
		logger:     logger.With("component", "health"),
	}
	s.SetServing(false)
	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("health server listening", "addr", s.Addr())
		if err := s.grpcServer.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error("health server failed", "error", err)
		}
	}()
}

// SetServing reports the filesystem as mounted or not.
func (s *Server) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(Service, status)
	s.health.SetServingStatus("", status)
	s.logger.Debug("health status", "status", status.String())
}

// Stop marks the service as shutting down and stops the server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
