// internal/server/grpc_server.go
package server

import (
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health check service reported for the scanner.
const ServiceName = "recharge.Scanner"

type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	logger *zap.Logger
	addr   string
}

func NewGRPCServer(addr string, logger *zap.Logger) *GRPCServer {
	s := &GRPCServer{
		health: health.NewServer(),
		logger: logger,
		addr:   addr,
	}

	s.server = grpc.NewServer(
		grpc.MaxRecvMsgSize(4*1024*1024),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 5 * time.Minute,
			Time:              2 * time.Minute,
			Timeout:           20 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             30 * time.Second,
			PermitWithoutStream: true,
		}),
	)

	healthpb.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)

	s.SetServing(false)
	return s
}

// SetServing flips both the overall and the scanner health status.
func (s *GRPCServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Start listens on the configured address and serves until Stop.
func (s *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

func (s *GRPCServer) Serve(lis net.Listener) error {
	s.logger.Info("Starting gRPC server", zap.String("addr", lis.Addr().String()))
	if err := s.server.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop marks the service not serving and drains in-flight calls.
func (s *GRPCServer) Stop() {
	s.logger.Info("Stopping gRPC server")
	s.health.Shutdown()
	s.server.GracefulStop()
}
