// Package bookingtest provides an in-memory booking.Store for tests.
package bookingtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/outbox"
)

// MemoryStore keeps bookings in memory. Inserts are visible to other
// transactions immediately and undone on rollback. Like the Postgres schema
// it rejects overlapping active bookings of one tutor unless
// NoOverlapConstraint is set.
type MemoryStore struct {
	// BeforeInsert, when set, runs before every insert outside the store lock.
	BeforeInsert        func(model.Booking)
	NoOverlapConstraint bool

	mu       sync.Mutex
	tutors   map[string]model.Tutor
	bookings map[string]model.Booking
	events   []outbox.Event
	locks    map[string]*sync.Mutex
}

var (
	_ booking.Store              = (*MemoryStore)(nil)
	_ availability.BookingSource = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tutors:   make(map[string]model.Tutor),
		bookings: make(map[string]model.Booking),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) PutTutor(t model.Tutor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tutors[t.ID] = t
}

// PutBooking stores b as-is, bypassing the overlap constraint.
func (s *MemoryStore) PutBooking(b model.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = b
}

func (s *MemoryStore) Booking(id string) (model.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	return b, ok
}

func (s *MemoryStore) Bookings() []model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		out = append(out, b)
	}
	sortByStart(out)
	return out
}

func (s *MemoryStore) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Event(nil), s.events...)
}

func (s *MemoryStore) WithinTx(ctx context.Context, opts booking.TxOptions, fn func(booking.Tx) error) error {
	if opts.LockTutorID != "" {
		l := s.tutorLock(opts.LockTutorID)
		l.Lock()
		defer l.Unlock()
	}
	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	s.mu.Lock()
	s.events = append(s.events, tx.events...)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) TutorBookings(_ context.Context, tutorID string, window model.TimeInterval) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tutorBookingsLocked(tutorID, window), nil
}

func (s *MemoryStore) PartyBookings(_ context.Context, accountID string, limit int) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.HasParty(accountID) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Interval.Start.After(out[j].Interval.Start)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) tutorLock(tutorID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[tutorID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[tutorID] = l
	}
	return l
}

func (s *MemoryStore) tutorBookingsLocked(tutorID string, window model.TimeInterval) []model.Booking {
	var out []model.Booking
	for _, b := range s.bookings {
		if b.TutorID == tutorID && b.Interval.Overlaps(window) {
			out = append(out, b)
		}
	}
	sortByStart(out)
	return out
}

type memTx struct {
	s      *MemoryStore
	undo   []func()
	events []outbox.Event
}

func (tx *memTx) rollback() {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
}

func (tx *memTx) Tutor(_ context.Context, tutorID string) (model.Tutor, error) {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	t, ok := tx.s.tutors[tutorID]
	if !ok {
		return model.Tutor{}, booking.ErrTutorNotFound
	}
	return t, nil
}

func (tx *memTx) TutorBookings(_ context.Context, tutorID string, window model.TimeInterval) ([]model.Booking, error) {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	return tx.s.tutorBookingsLocked(tutorID, window), nil
}

func (tx *memTx) BookingForUpdate(_ context.Context, bookingID string) (model.Booking, error) {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	b, ok := tx.s.bookings[bookingID]
	if !ok {
		return model.Booking{}, booking.ErrNotFound
	}
	return b, nil
}

func (tx *memTx) InsertBooking(_ context.Context, b model.Booking) (model.Booking, error) {
	if tx.s.BeforeInsert != nil {
		tx.s.BeforeInsert(b)
	}
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()

	if !tx.s.NoOverlapConstraint && b.Status.Active() {
		for _, other := range tx.s.bookings {
			if other.TutorID == b.TutorID && other.Status.Active() && other.Interval.Overlaps(b.Interval) {
				return model.Booking{}, fmt.Errorf("insert booking: %w", booking.ErrSlotTaken)
			}
		}
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	tx.s.bookings[b.ID] = b
	id := b.ID
	tx.undo = append(tx.undo, func() { delete(tx.s.bookings, id) })
	return b, nil
}

func (tx *memTx) UpdateBookingStatus(_ context.Context, bookingID string, status model.BookingStatus, reason string, at time.Time) (model.Booking, error) {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	prev, ok := tx.s.bookings[bookingID]
	if !ok {
		return model.Booking{}, booking.ErrNotFound
	}
	b := prev
	b.Status = status
	if status == model.StatusCancelled {
		cancelledAt := at.UTC()
		b.CancelledAt = &cancelledAt
		b.CancelReason = reason
	}
	tx.s.bookings[bookingID] = b
	tx.undo = append(tx.undo, func() { tx.s.bookings[bookingID] = prev })
	return b, nil
}

func (tx *memTx) AttachPaymentIntent(_ context.Context, bookingID, intentID string) (model.Booking, error) {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	prev, ok := tx.s.bookings[bookingID]
	if !ok {
		return model.Booking{}, booking.ErrNotFound
	}
	b := prev
	b.PaymentIntentID = intentID
	tx.s.bookings[bookingID] = b
	tx.undo = append(tx.undo, func() { tx.s.bookings[bookingID] = prev })
	return b, nil
}

func (tx *memTx) ElapsedActive(_ context.Context, now time.Time, limit int) ([]model.Booking, error) {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	var out []model.Booking
	for _, b := range tx.s.bookings {
		if b.Status.Active() && !b.Interval.End.After(now) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Interval.End.Equal(out[j].Interval.End) {
			return out[i].Interval.End.Before(out[j].Interval.End)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (tx *memTx) StalePending(_ context.Context, cutoff time.Time, limit int) ([]model.Booking, error) {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	var out []model.Booking
	for _, b := range tx.s.bookings {
		if b.Status == model.StatusPending && b.CreatedAt.Before(cutoff) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (tx *memTx) AppendEvent(_ context.Context, evt outbox.Event) error {
	tx.events = append(tx.events, evt)
	return nil
}

func sortByStart(bookings []model.Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		if !bookings[i].Interval.Start.Equal(bookings[j].Interval.Start) {
			return bookings[i].Interval.Start.Before(bookings[j].Interval.Start)
		}
		return bookings[i].ID < bookings[j].ID
	})
}
