package grpcx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthReporterEvaluate(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(logger)
	healthy := true
	rep := RegisterHealth(srv, "appointments", logger, func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("db down")
	})

	rep.evaluate(context.Background())
	resp, err := rep.srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "appointments"})
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", resp.GetStatus())
	}

	healthy = false
	rep.evaluate(context.Background())
	resp, _ = rep.srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "appointments"})
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %s", resp.GetStatus())
	}
}
