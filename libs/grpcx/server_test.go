package grpcx

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthRoundTrip(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, hs := NewServer()
	hs.SetServingStatus("booking", healthpb.HealthCheckResponse_SERVING)
	Serve(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), srv, hs, lis)

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dialCancel()
	conn, err := Dial(dialCtx, lis.Addr().String(), DialOptions{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := CheckHealth(dialCtx, conn, "booking"); err != nil {
		t.Fatalf("expected serving: %v", err)
	}

	hs.SetServingStatus("booking", healthpb.HealthCheckResponse_NOT_SERVING)
	if err := CheckHealth(dialCtx, conn, "booking"); err == nil {
		t.Fatal("expected not serving error")
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "abc")
	if got := RequestIDFromContext(ctx); got != "abc" {
		t.Fatalf("unexpected id %q", got)
	}
	if WithRequestID(ctx, "") != ctx {
		t.Fatal("empty id must not replace context")
	}
	if len(NewRequestID()) != 32 {
		t.Fatal("expected 16 byte hex id")
	}
}
