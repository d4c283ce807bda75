package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BookingSource returns every booking of tutorID, whatever its status, whose
// interval overlaps window.
type BookingSource interface {
	TutorBookings(ctx context.Context, tutorID string, window model.TimeInterval) ([]model.Booking, error)
}

// Engine runs the pure checks against history fetched from a BookingSource.
type Engine struct {
	source BookingSource
	now    func() time.Time
}

func NewEngine(source BookingSource) *Engine {
	return &Engine{source: source, now: time.Now}
}

func (e *Engine) Check(ctx context.Context, tutorID string, candidate model.TimeInterval) (ConflictReport, error) {
	ctx, span := startSpan(ctx, "availability.check", tutorID)
	defer span.End()

	if err := candidate.Validate(); err != nil {
		return ConflictReport{}, err
	}
	history, err := e.source.TutorBookings(ctx, tutorID, candidate)
	if err != nil {
		span.RecordError(err)
		return ConflictReport{}, fmt.Errorf("load bookings: %w", err)
	}
	report, err := CheckAvailability(tutorID, candidate, history)
	if err != nil {
		span.RecordError(err)
		return ConflictReport{}, err
	}
	span.SetAttributes(
		attribute.Bool("availability.available", report.Available),
		attribute.Int("availability.conflicts", len(report.Conflicts)),
	)
	return report, nil
}

func (e *Engine) NextSlot(ctx context.Context, tutorID string, after time.Time, duration, lookahead time.Duration) (model.TimeInterval, error) {
	ctx, span := startSpan(ctx, "availability.next_slot", tutorID)
	defer span.End()

	if duration <= 0 {
		return model.TimeInterval{}, &model.InvalidIntervalError{Start: after, End: after.Add(duration)}
	}
	if lookahead <= 0 {
		return model.TimeInterval{}, ErrNoSlot
	}
	window := model.TimeInterval{Start: after.UTC(), End: after.UTC().Add(lookahead)}
	history, err := e.source.TutorBookings(ctx, tutorID, window)
	if err != nil {
		span.RecordError(err)
		return model.TimeInterval{}, fmt.Errorf("load bookings: %w", err)
	}
	return NextAvailableSlot(tutorID, after, duration, lookahead, history)
}

func (e *Engine) Slots(ctx context.Context, tutorID string, window model.TimeInterval, duration, step time.Duration) ([]model.TimeInterval, error) {
	ctx, span := startSpan(ctx, "availability.slots", tutorID)
	defer span.End()

	if err := window.Validate(); err != nil {
		return nil, err
	}
	history, err := e.source.TutorBookings(ctx, tutorID, window)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	return AvailableSlots(tutorID, window, duration, step, history, e.now().UTC())
}

func startSpan(ctx context.Context, name, tutorID string) (context.Context, trace.Span) {
	return otel.Tracer("availability").Start(ctx, name,
		trace.WithAttributes(attribute.String("tutor.id", tutorID)),
	)
}
