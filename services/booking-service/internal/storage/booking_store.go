package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/tutorbook/libs/db"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/outbox"
)

const bookingColumns = `id, tutor_id, student_id, start_time, end_time, status, subject,
	total_cost_cents, currency, notes, COALESCE(cancellation_reason, ''), cancelled_at, created_at,
	COALESCE(payment_intent_id, '')`

// BookingStore is the Postgres booking.Store. The bookings table carries an
// exclusion constraint over active intervals, so overlapping active rows of
// one tutor can never commit regardless of the guard in use.
type BookingStore struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

var (
	_ booking.Store              = (*BookingStore)(nil)
	_ availability.BookingSource = (*BookingStore)(nil)
)

func NewBookingStore(pool *db.Pool, outboxRepo *outbox.Repository) *BookingStore {
	return &BookingStore{pool: pool, outbox: outboxRepo}
}

func (s *BookingStore) WithinTx(ctx context.Context, opts booking.TxOptions, fn func(booking.Tx) error) error {
	return s.pool.InTx(ctx, func(tx pgx.Tx) error {
		if opts.LockTutorID != "" {
			// Released on commit or rollback.
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, opts.LockTutorID); err != nil {
				return fmt.Errorf("lock tutor: %w", err)
			}
		}
		return fn(&pgTx{tx: tx, outbox: s.outbox})
	})
}

func (s *BookingStore) TutorBookings(ctx context.Context, tutorID string, window model.TimeInterval) ([]model.Booking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE tutor_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time, id
	`, tutorID, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *BookingStore) PartyBookings(ctx context.Context, accountID string, limit int) ([]model.Booking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE student_id = $1 OR tutor_id = $1
		ORDER BY start_time DESC, id
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *pgTx) Tutor(ctx context.Context, tutorID string) (model.Tutor, error) {
	tutor, err := scanTutor(t.tx.QueryRow(ctx, `SELECT `+tutorColumns+` FROM tutors WHERE id = $1`, tutorID))
	if db.IsNoRows(err) {
		return model.Tutor{}, booking.ErrTutorNotFound
	}
	return tutor, err
}

func (t *pgTx) TutorBookings(ctx context.Context, tutorID string, window model.TimeInterval) ([]model.Booking, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE tutor_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time, id
	`, tutorID, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (t *pgTx) BookingForUpdate(ctx context.Context, bookingID string) (model.Booking, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, bookingID))
	if db.IsNoRows(err) {
		return model.Booking{}, booking.ErrNotFound
	}
	return b, err
}

func (t *pgTx) InsertBooking(ctx context.Context, b model.Booking) (model.Booking, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	created, err := scanBooking(t.tx.QueryRow(ctx, `
		INSERT INTO bookings
			(id, tutor_id, student_id, start_time, end_time, status, subject, total_cost_cents, currency, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+bookingColumns,
		b.ID, b.TutorID, b.StudentID, b.Interval.Start.UTC(), b.Interval.End.UTC(), string(b.Status),
		b.Subject, b.TotalCostCents, b.Currency, b.Notes))
	if db.HasCode(err, db.CodeExclusionViolation) {
		return model.Booking{}, fmt.Errorf("insert booking: %w", booking.ErrSlotTaken)
	}
	return created, err
}

func (t *pgTx) UpdateBookingStatus(ctx context.Context, bookingID string, status model.BookingStatus, reason string, at time.Time) (model.Booking, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
			cancellation_reason = CASE WHEN $2 = 'cancelled' THEN NULLIF($3, '') ELSE cancellation_reason END,
			cancelled_at = CASE WHEN $2 = 'cancelled' THEN $4 ELSE cancelled_at END,
			updated_at = now()
		WHERE id = $1
		RETURNING `+bookingColumns,
		bookingID, string(status), reason, at.UTC()))
	if db.IsNoRows(err) {
		return model.Booking{}, booking.ErrNotFound
	}
	return b, err
}

func (t *pgTx) AttachPaymentIntent(ctx context.Context, bookingID, intentID string) (model.Booking, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx, `
		UPDATE bookings
		SET payment_intent_id = NULLIF($2, ''), updated_at = now()
		WHERE id = $1
		RETURNING `+bookingColumns,
		bookingID, intentID))
	if db.IsNoRows(err) {
		return model.Booking{}, booking.ErrNotFound
	}
	return b, err
}

func (t *pgTx) ElapsedActive(ctx context.Context, now time.Time, limit int) ([]model.Booking, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status IN ('pending', 'confirmed') AND end_time <= $1
		ORDER BY end_time, id
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (t *pgTx) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]model.Booking, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at, id
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, cutoff.UTC(), limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (t *pgTx) AppendEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (model.Booking, error) {
	var (
		b      model.Booking
		status string
	)
	err := row.Scan(
		&b.ID,
		&b.TutorID,
		&b.StudentID,
		&b.Interval.Start,
		&b.Interval.End,
		&status,
		&b.Subject,
		&b.TotalCostCents,
		&b.Currency,
		&b.Notes,
		&b.CancelReason,
		&b.CancelledAt,
		&b.CreatedAt,
		&b.PaymentIntentID,
	)
	if err != nil {
		return model.Booking{}, err
	}
	b.Status = model.BookingStatus(status)
	b.Interval.Start = b.Interval.Start.UTC()
	b.Interval.End = b.Interval.End.UTC()
	return b, nil
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
