package grpchealth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/vrcneta/topic-gateway/internal/resilience"
)

// ErrNotServing is returned by ProbeUntilServing when the last check
// reported a status other than SERVING.
var ErrNotServing = errors.New("service not serving")

// Probe asks the health server at addr for the status of service ("" for
// the whole server) and reports whether it is serving. Errors that another
// attempt cannot fix are marked permanent.
func Probe(ctx context.Context, addr, service string) (bool, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return false, resilience.Permanent(fmt.Errorf("failed to dial health server at %s: %w", addr, err))
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		wrapped := fmt.Errorf("health check failed: %w", err)
		if status.Code(err) == codes.NotFound {
			return false, resilience.Permanent(wrapped)
		}
		return false, wrapped
	}

	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// ProbeUntilServing repeats Probe while the server is starting up or not
// yet ready, giving up after config.MaxAttempts checks.
func ProbeUntilServing(ctx context.Context, addr, service string, config *resilience.RetryConfig) error {
	return resilience.Retry(ctx, func(ctx context.Context) error {
		serving, err := Probe(ctx, addr, service)
		if err != nil {
			return err
		}
		if !serving {
			return ErrNotServing
		}
		return nil
	}, config, nil)
}
