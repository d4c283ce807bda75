package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SystemActor cancels on behalf of the platform (payment failures, sweeps).
const SystemActor = "system"

const reasonPaymentNotReceived = "payment not received"

// PaymentCanceller voids a provider payment intent so it can no longer be
// charged.
type PaymentCanceller interface {
	CancelSessionPayment(ctx context.Context, intentID string) error
}

type Service struct {
	store    Store
	guard    Guard
	logger   *slog.Logger
	now      func() time.Time
	payments PaymentCanceller
}

func NewService(store Store, guard Guard, logger *slog.Logger) *Service {
	if guard == "" {
		guard = GuardLock
	}
	return &Service{store: store, guard: guard, logger: logger, now: time.Now}
}

// WithClock replaces the service clock. Intended for tests and tools.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithPaymentCanceller makes the service void the payment intent of every
// unpaid booking it cancels.
func (s *Service) WithPaymentCanceller(p PaymentCanceller) *Service {
	s.payments = p
	return s
}

func (s *Service) Guard() Guard { return s.guard }

type BookRequest struct {
	TutorID   string
	StudentID string
	Start     time.Time
	End       time.Time
	Subject   string
	Notes     string
}

// BookResult carries the created booking, or a nil Booking and the report
// listing the conflicts when the slot is not available.
type BookResult struct {
	Booking *model.Booking
	Report  availability.ConflictReport
}

func (s *Service) Book(ctx context.Context, req BookRequest) (BookResult, error) {
	ctx, span := otel.Tracer("booking").Start(ctx, "booking.book",
		trace.WithAttributes(
			attribute.String("tutor.id", req.TutorID),
			attribute.String("booking.guard", string(s.guard)),
		),
	)
	defer span.End()

	candidate, err := model.NewTimeInterval(req.Start, req.End)
	if err != nil {
		return BookResult{}, err
	}
	now := s.now().UTC()
	if !candidate.Start.After(now) {
		return BookResult{}, ErrStartInPast
	}

	opts := TxOptions{}
	if s.guard == GuardLock {
		opts.LockTutorID = req.TutorID
	}

	var result BookResult
	err = s.store.WithinTx(ctx, opts, func(tx Tx) error {
		tutor, err := tx.Tutor(ctx, req.TutorID)
		if err != nil {
			return err
		}
		if !tutor.Teaches(req.Subject) {
			return ErrSubjectNotOffered
		}

		history, err := tx.TutorBookings(ctx, req.TutorID, candidate)
		if err != nil {
			return fmt.Errorf("load bookings: %w", err)
		}
		report, err := availability.CheckAvailability(req.TutorID, candidate, history)
		if err != nil {
			return err
		}
		result.Report = report
		if !report.Available {
			return nil
		}

		created, err := tx.InsertBooking(ctx, model.Booking{
			TutorID:        req.TutorID,
			StudentID:      req.StudentID,
			Interval:       candidate,
			Status:         model.StatusPending,
			Subject:        strings.TrimSpace(req.Subject),
			TotalCostCents: SessionCost(tutor.HourlyRateCents, candidate.Duration()),
			Currency:       tutor.Currency,
			Notes:          req.Notes,
			CreatedAt:      now,
		})
		if err != nil {
			return err
		}
		evt, err := newSessionEvent(eventTypeFor(created.Status), created, now)
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, evt); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		result.Booking = &created
		return nil
	})
	if errors.Is(err, ErrSlotTaken) {
		span.SetAttributes(attribute.Bool("booking.write_conflict", true))
		return BookResult{}, s.writeConflict(ctx, req.TutorID, candidate, err)
	}
	if err != nil {
		span.RecordError(err)
		return BookResult{}, err
	}
	return result, nil
}

func (s *Service) writeConflict(ctx context.Context, tutorID string, candidate model.TimeInterval, cause error) error {
	wc := &WriteConflictError{TutorID: tutorID, Candidate: candidate, Err: cause}
	err := s.store.WithinTx(ctx, TxOptions{}, func(tx Tx) error {
		history, err := tx.TutorBookings(ctx, tutorID, candidate)
		if err != nil {
			return err
		}
		report, err := availability.CheckAvailability(tutorID, candidate, history)
		if err != nil {
			return err
		}
		wc.Conflicts = report.Conflicts
		return nil
	})
	if err != nil {
		s.logger.Warn("re-read after write conflict failed", "tutor_id", tutorID, "err", err)
	}
	return wc
}

// Cancel moves a booking to cancelled. Only its tutor, its student or
// SystemActor may cancel, and cancelling twice returns the stored booking.
// An unpaid booking has its payment intent voided.
func (s *Service) Cancel(ctx context.Context, bookingID, actorID, reason string) (model.Booking, error) {
	return s.cancel(ctx, bookingID, actorID, reason, true)
}

// PaymentCanceled cancels a booking whose payment intent the provider has
// already cancelled.
func (s *Service) PaymentCanceled(ctx context.Context, bookingID, reason string) (model.Booking, error) {
	return s.cancel(ctx, bookingID, SystemActor, reason, false)
}

func (s *Service) cancel(ctx context.Context, bookingID, actorID, reason string, voidPayment bool) (model.Booking, error) {
	var (
		out    model.Booking
		unpaid bool
	)
	err := s.store.WithinTx(ctx, TxOptions{}, func(tx Tx) error {
		b, err := tx.BookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if actorID != SystemActor && !b.HasParty(actorID) {
			return ErrForbidden
		}
		if b.Status == model.StatusCancelled {
			out = b
			return nil
		}
		unpaid = b.Status == model.StatusPending
		out, err = s.transition(ctx, tx, b, model.StatusCancelled, strings.TrimSpace(reason))
		return err
	})
	if err != nil {
		return model.Booking{}, err
	}
	if unpaid && voidPayment {
		s.voidPayments(ctx, []model.Booking{out})
	}
	return out, nil
}

// Confirm marks a pending booking as paid. Confirming twice is a no-op.
// Payment for a cancelled booking yields ErrCancelledBeforePayment.
func (s *Service) Confirm(ctx context.Context, bookingID string) (model.Booking, error) {
	var out model.Booking
	err := s.store.WithinTx(ctx, TxOptions{}, func(tx Tx) error {
		b, err := tx.BookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		switch b.Status {
		case model.StatusConfirmed:
			out = b
			return nil
		case model.StatusCancelled:
			return fmt.Errorf("%w: %w", ErrInvalidTransition, ErrCancelledBeforePayment)
		}
		out, err = s.transition(ctx, tx, b, model.StatusConfirmed, "")
		return err
	})
	return out, err
}

// AttachPayment records the provider intent collecting payment for a booking.
func (s *Service) AttachPayment(ctx context.Context, bookingID, intentID string) (model.Booking, error) {
	var out model.Booking
	err := s.store.WithinTx(ctx, TxOptions{}, func(tx Tx) error {
		var err error
		out, err = tx.AttachPaymentIntent(ctx, bookingID, intentID)
		return err
	})
	return out, err
}

// SettleElapsed finishes up to limit bookings whose interval has ended:
// confirmed sessions complete, unpaid pending ones are cancelled.
func (s *Service) SettleElapsed(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	now := s.now().UTC()
	var unpaid []model.Booking
	settled := 0
	err := s.store.WithinTx(ctx, TxOptions{}, func(tx Tx) error {
		elapsed, err := tx.ElapsedActive(ctx, now, limit)
		if err != nil {
			return err
		}
		for _, b := range elapsed {
			next, reason := model.StatusCompleted, ""
			if b.Status == model.StatusPending {
				next, reason = model.StatusCancelled, reasonPaymentNotReceived
			}
			updated, err := s.transition(ctx, tx, b, next, reason)
			if err != nil {
				return fmt.Errorf("settle %s: %w", b.ID, err)
			}
			if b.Status == model.StatusPending {
				unpaid = append(unpaid, updated)
			}
			settled++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.voidPayments(ctx, unpaid)
	return settled, nil
}

// ExpireUnpaid cancels up to limit pending bookings that have waited longer
// than hold for payment, releasing their slots.
func (s *Service) ExpireUnpaid(ctx context.Context, hold time.Duration, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	cutoff := s.now().UTC().Add(-hold)
	var expired []model.Booking
	err := s.store.WithinTx(ctx, TxOptions{}, func(tx Tx) error {
		stale, err := tx.StalePending(ctx, cutoff, limit)
		if err != nil {
			return err
		}
		for _, b := range stale {
			updated, err := s.transition(ctx, tx, b, model.StatusCancelled, reasonPaymentNotReceived)
			if err != nil {
				return fmt.Errorf("expire %s: %w", b.ID, err)
			}
			expired = append(expired, updated)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.voidPayments(ctx, expired)
	return len(expired), nil
}

// voidPayments runs after commit. Failures are only logged; a payment that
// still completes surfaces later as ErrCancelledBeforePayment.
func (s *Service) voidPayments(ctx context.Context, bookings []model.Booking) {
	if s.payments == nil {
		return
	}
	for _, b := range bookings {
		if b.PaymentIntentID == "" {
			continue
		}
		if err := s.payments.CancelSessionPayment(ctx, b.PaymentIntentID); err != nil {
			s.logger.Error("failed to cancel payment intent",
				"booking_id", b.ID,
				"intent_id", b.PaymentIntentID,
				"err", err,
			)
		}
	}
}

func (s *Service) ListForAccount(ctx context.Context, accountID string, limit int) ([]model.Booking, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.PartyBookings(ctx, accountID, limit)
}

func (s *Service) transition(ctx context.Context, tx Tx, b model.Booking, next model.BookingStatus, reason string) (model.Booking, error) {
	if !b.Status.CanTransitionTo(next) {
		return model.Booking{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, b.Status, next)
	}
	now := s.now().UTC()
	updated, err := tx.UpdateBookingStatus(ctx, b.ID, next, reason, now)
	if err != nil {
		return model.Booking{}, err
	}
	evt, err := newSessionEvent(eventTypeFor(next), updated, now)
	if err != nil {
		return model.Booking{}, err
	}
	if err := tx.AppendEvent(ctx, evt); err != nil {
		return model.Booking{}, fmt.Errorf("append event: %w", err)
	}
	return updated, nil
}
