package grpcx

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewServer builds a gRPC server with tracing, request id and logging interceptors.
func NewServer(logger *slog.Logger, extra ...grpc.ServerOption) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLogInterceptor(logger),
		),
	}
	return grpc.NewServer(append(opts, extra...)...)
}

// HealthReporter keeps the standard gRPC health service in sync with dependency checks.
type HealthReporter struct {
	srv     *health.Server
	service string
	checks  []func(context.Context) error
	logger  *slog.Logger
}

func RegisterHealth(s *grpc.Server, service string, logger *slog.Logger, checks ...func(context.Context) error) *HealthReporter {
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthReporter{srv: hs, service: service, checks: checks, logger: logger}
}

// Run re-evaluates the checks every interval until ctx is done.
func (h *HealthReporter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	h.evaluate(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-ticker.C:
			h.evaluate(ctx)
		}
	}
}

func (h *HealthReporter) evaluate(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	for _, check := range h.checks {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := check(checkCtx)
		cancel()
		if err != nil {
			h.logger.Warn("grpc health check failed", "service", h.service, "err", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
			break
		}
	}
	h.srv.SetServingStatus(h.service, status)
	h.srv.SetServingStatus("", status)
}
