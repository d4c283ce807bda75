package kafkax

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestNewMessageCarriesMetaAndTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	msg := NewMessage(ctx, Envelope{
		EventID:     "evt-1",
		EventType:   "booking.session.booked.v1",
		AggregateID: "booking-1",
		Payload:     []byte(`{}`),
	})
	if msg.Topic != "booking.session.booked.v1" || string(msg.Key) != "booking-1" {
		t.Fatalf("unexpected routing: topic=%s key=%s", msg.Topic, msg.Key)
	}
	if HeaderValue(msg.Headers, "event_id") != "evt-1" {
		t.Fatal("missing event_id header")
	}
	if want := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"; HeaderValue(msg.Headers, "traceparent") != want {
		t.Fatalf("unexpected traceparent %q", HeaderValue(msg.Headers, "traceparent"))
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092")
	if len(got) != 2 || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %#v", got)
	}
}
