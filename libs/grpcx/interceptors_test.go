package grpcx

import (
	"context"
	"strings"
	"testing"

	"github.com/DemianF-dev/7pet-mvp-sub007/libs/httpx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func runRequestID(t *testing.T, ctx context.Context) string {
	t.Helper()
	var seen string
	_, err := UnaryServerRequestIDInterceptor()(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Call"},
		func(ctx context.Context, _ any) (any, error) {
			seen = httpx.RequestIDFromContext(ctx)
			return nil, nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return seen
}

func TestRequestIDFromMetadata(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDMetadataKey, "req-1"))
	if got := runRequestID(t, ctx); got != "req-1" {
		t.Fatalf("expected req-1, got %q", got)
	}
}

func TestRequestIDMintedWhenMissingOrOversized(t *testing.T) {
	if got := runRequestID(t, context.Background()); got == "" {
		t.Fatalf("expected a generated request id")
	}

	long := strings.Repeat("x", 200)
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDMetadataKey, long))
	if got := runRequestID(t, ctx); got == "" || got == long {
		t.Fatalf("expected oversized id to be replaced, got %q", got)
	}
}
