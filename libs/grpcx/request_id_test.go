package grpcx

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func TestWithRequestID(t *testing.T) {
	ctx := context.Background()
	if got := RequestIDFromContext(WithRequestID(ctx, "")); got != "" {
		t.Fatalf("expected empty id to be ignored, got %q", got)
	}
	if got := RequestIDFromContext(WithRequestID(ctx, "req-1")); got != "req-1" {
		t.Fatalf("expected req-1, got %q", got)
	}
}

func TestUnaryServerRequestIDInterceptor(t *testing.T) {
	intercept := UnaryServerRequestIDInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	var seen string
	handler := func(ctx context.Context, _ any) (any, error) {
		seen = RequestIDFromContext(ctx)
		return nil, nil
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDMetadataKey, "from-client"))
	if _, err := intercept(ctx, nil, info, handler); err != nil {
		t.Fatalf("intercept: %v", err)
	}
	if seen != "from-client" {
		t.Fatalf("expected incoming id to be kept, got %q", seen)
	}

	if _, err := intercept(context.Background(), nil, info, handler); err != nil {
		t.Fatalf("intercept: %v", err)
	}
	if len(seen) != 36 {
		t.Fatalf("expected a generated uuid, got %q", seen)
	}
}
