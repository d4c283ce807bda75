package main

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/grpcx"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/model"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestRootRegistersCommands(t *testing.T) {
	root := NewRoot()
	for _, name := range []string{"migrate", "check", "next-slot", "health"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("expected %s command, got %v (%v)", name, cmd, err)
		}
	}
}

func TestParseInterval(t *testing.T) {
	iv, err := parseInterval("2024-01-15T10:00:00-05:00", "2024-01-15T11:00:00-05:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if iv.Start.Location() != time.UTC || iv.Start.Hour() != 15 {
		t.Fatalf("expected UTC normalized start, got %s", iv.Start)
	}
	_, err = parseInterval("2024-01-15T11:00:00Z", "2024-01-15T10:00:00Z")
	if _, ok := err.(*model.InvalidIntervalError); !ok {
		t.Fatalf("expected InvalidIntervalError, got %v", err)
	}
	if _, err := parseInterval("yesterday", "2024-01-15T10:00:00Z"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCheckRequiresDatabaseURL(t *testing.T) {
	root := NewRoot()
	root.SetArgs([]string{"check", "tutor-1", "--database-url", "", "--from", "2024-01-15T10:00:00Z", "--to", "2024-01-15T11:00:00Z"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected missing database url error, got %v", err)
	}
}

func TestHealthCommand(t *testing.T) {
	srv, hs := grpcx.NewServer()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	hs.SetServingStatus("booking-service", healthpb.HealthCheckResponse_SERVING)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	var out bytes.Buffer
	root := NewRoot()
	root.SetArgs([]string{"health", "--addr", lis.Addr().String()})
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	if !strings.Contains(out.String(), "SERVING") {
		t.Fatalf("unexpected output %q", out.String())
	}

	hs.SetServingStatus("booking-service", healthpb.HealthCheckResponse_NOT_SERVING)
	root = NewRoot()
	root.SetArgs([]string{"health", "--addr", lis.Addr().String()})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	if err := root.ExecuteContext(context.Background()); err == nil {
		t.Fatal("expected NOT_SERVING to fail")
	}
}
