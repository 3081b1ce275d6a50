// Package grpchealth exposes service readiness over the standard gRPC
// health protocol and probes it from the command line.
package grpchealth

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/vrcneta/topic-gateway/internal/observability"
)

// Server serves grpc.health.v1.Health. The overall status and one status
// per readiness dependency follow the readiness checks.
type Server struct {
	grpc      *grpc.Server
	health    *health.Server
	readiness *observability.Readiness
	logger    zerolog.Logger
}

// NewServer creates a health server over readiness
func NewServer(readiness *observability.Readiness, logger zerolog.Logger) *Server {
	grpcServer := grpc.NewServer(grpc.KeepaliveParams(keepalive.ServerParameters{
		Time:    30 * time.Second,
		Timeout: 5 * time.Second,
	}))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(observability.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	for _, name := range readiness.Names() {
		healthServer.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
	}

	return &Server{
		grpc:      grpcServer,
		health:    healthServer,
		readiness: readiness,
		logger:    observability.WithComponent(logger, "grpc_health"),
	}
}

// Refresh runs the readiness checks once and publishes the result
func (s *Server) Refresh(ctx context.Context) bool {
	ready, dependencies := s.readiness.Check(ctx)

	for name, dep := range dependencies {
		s.health.SetServingStatus(name, servingStatus(dep.Status == "healthy"))
	}
	s.health.SetServingStatus("", servingStatus(ready))
	s.health.SetServingStatus(observability.ServiceName, servingStatus(ready))
	return ready
}

// Watch refreshes the status every interval until ctx is done
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, interval)
			if !s.Refresh(checkCtx) {
				s.logger.Debug().Msg("Service not ready")
			}
			cancel()
		}
	}
}

// Serve accepts connections on lis until Stop
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server listening")
	return s.grpc.Serve(lis)
}

// Stop marks every service as not serving and stops the server gracefully
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
