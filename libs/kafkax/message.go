package kafkax

import (
	"context"
	"strings"

	"github.com/segmentio/kafka-go"
)

// Envelope is what services publish: the topic equals the event type and the
// key is the aggregate id so one aggregate's events stay ordered.
type Envelope struct {
	EventID     string
	EventType   string
	AggregateID string
	Payload     []byte
}

// NewMessage builds the Kafka message for env, carrying event metadata and
// the W3C trace context of ctx as headers.
func NewMessage(ctx context.Context, env Envelope) kafka.Message {
	msg := kafka.Message{
		Topic: env.EventType,
		Key:   []byte(env.AggregateID),
		Value: env.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(env.EventID)},
			{Key: "event_type", Value: []byte(env.EventType)},
		},
	}
	msg.Headers = InjectTraceHeaders(ctx, msg.Headers)
	return msg
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
