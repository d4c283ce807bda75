package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/auth"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/booking/bookingtest"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/storage"
)

const testSecret = "test-secret"

var discard = slog.New(slog.NewJSONHandler(io.Discard, nil))

// sessionStart is far enough ahead that the service clock never rejects it.
var sessionStart = time.Now().UTC().Add(72 * time.Hour).Truncate(time.Hour)

type failingProvider struct{}

func (failingProvider) CreateSessionPayment(context.Context, model.Booking) (payments.Intent, error) {
	return payments.Intent{}, errors.New("stripe unreachable")
}

func (failingProvider) CancelSessionPayment(context.Context, string) error {
	return errors.New("stripe unreachable")
}

// recordingProvider hands out one intent per booking and remembers which
// intents were cancelled.
type recordingProvider struct {
	mu        sync.Mutex
	cancelled []string
}

func (p *recordingProvider) CreateSessionPayment(_ context.Context, b model.Booking) (payments.Intent, error) {
	return payments.Intent{
		ID:           "pi_" + b.ID,
		ClientSecret: "pi_" + b.ID + "_secret",
		Status:       "requires_payment_method",
		AmountCents:  b.TotalCostCents,
		Currency:     b.Currency,
		Required:     true,
	}, nil
}

func (p *recordingProvider) CancelSessionPayment(_ context.Context, intentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, intentID)
	return nil
}

func (p *recordingProvider) cancelledIntents() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.cancelled...)
}

type fixture struct {
	store    *bookingtest.MemoryStore
	svc      *booking.Service
	bookings *BookingHandler
	avail    *AvailabilityHandler
}

func newFixture(t *testing.T, guard booking.Guard, provider payments.Provider) fixture {
	t.Helper()
	store := bookingtest.NewMemoryStore()
	store.PutTutor(model.Tutor{ID: "tutor-1", AccountID: "tutor-1", DisplayName: "Ada", Subjects: []string{"Math"}, HourlyRateCents: 4000, Currency: "usd"})
	svc := booking.NewService(store, guard, discard).WithPaymentCanceller(provider)
	return fixture{
		store:    store,
		svc:      svc,
		bookings: NewBookingHandler(svc, provider, discard),
		avail:    NewAvailabilityHandler(availability.NewEngine(store), discard),
	}
}

func asAccount(r *http.Request, id string, role model.Role) *http.Request {
	return r.WithContext(auth.ContextWithClaims(r.Context(), &auth.Claims{Sub: id, Role: string(role)}))
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewReader(b)
}

func bookRequest(t *testing.T, start time.Time, d time.Duration) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/api/v1/bookings", jsonBody(t, map[string]string{
		"tutor_id":   "tutor-1",
		"start_time": start.Format(time.RFC3339),
		"end_time":   start.Add(d).Format(time.RFC3339),
		"subject":    "Math",
	}))
}

func activeBooking(id string, start time.Time, status model.BookingStatus) model.Booking {
	return model.Booking{
		ID: id, TutorID: "tutor-1", StudentID: "student-9", Subject: "Math", Status: status,
		Interval: model.TimeInterval{Start: start, End: start.Add(time.Hour)},
	}
}

func TestCreateBookingWithoutPaymentsConfirms(t *testing.T) {
	f := newFixture(t, booking.GuardLock, payments.DisabledProvider{})
	rec := httptest.NewRecorder()
	f.bookings.Create(rec, asAccount(bookRequest(t, sessionStart, 90*time.Minute), "student-1", model.RoleStudent))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp createBookingResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Booking.Status != "confirmed" || resp.Booking.TotalCostCents != 6000 || resp.Payment.Required {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCreateBookingConflict(t *testing.T) {
	f := newFixture(t, booking.GuardLock, payments.DisabledProvider{})
	f.store.PutBooking(activeBooking("existing", sessionStart, model.StatusConfirmed))

	rec := httptest.NewRecorder()
	f.bookings.Create(rec, asAccount(bookRequest(t, sessionStart.Add(30*time.Minute), time.Hour), "student-1", model.RoleStudent))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp conflictResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Conflicts) != 1 || resp.Conflicts[0].BookingID != "existing" {
		t.Fatalf("unexpected conflicts: %+v", resp.Conflicts)
	}
	if !strings.Contains(resp.Conflicts[0].Message, "confirmed Math session") {
		t.Fatalf("unexpected message: %q", resp.Conflicts[0].Message)
	}
}

func TestCreateBookingWriteConflictLooksLikeConflict(t *testing.T) {
	f := newFixture(t, booking.GuardConstraint, payments.DisabledProvider{})
	var once sync.Once
	f.store.BeforeInsert = func(model.Booking) {
		once.Do(func() { f.store.PutBooking(activeBooking("racer", sessionStart, model.StatusPending)) })
	}

	rec := httptest.NewRecorder()
	f.bookings.Create(rec, asAccount(bookRequest(t, sessionStart, time.Hour), "student-1", model.RoleStudent))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp conflictResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Conflicts) != 1 || resp.Conflicts[0].BookingID != "racer" || resp.Conflicts[0].Severity != availability.SeveritySoft {
		t.Fatalf("unexpected conflicts: %+v", resp.Conflicts)
	}
}

func TestCreateBookingPaymentFailureReleasesSlot(t *testing.T) {
	f := newFixture(t, booking.GuardLock, failingProvider{})
	rec := httptest.NewRecorder()
	f.bookings.Create(rec, asAccount(bookRequest(t, sessionStart, time.Hour), "student-1", model.RoleStudent))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	stored := f.store.Bookings()
	if len(stored) != 1 || stored[0].Status != model.StatusCancelled {
		t.Fatalf("expected the booking to be cancelled, got %+v", stored)
	}
}

func TestCreateBookingRecordsPaymentIntent(t *testing.T) {
	provider := &recordingProvider{}
	f := newFixture(t, booking.GuardLock, provider)
	rec := httptest.NewRecorder()
	f.bookings.Create(rec, asAccount(bookRequest(t, sessionStart, time.Hour), "student-1", model.RoleStudent))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp createBookingResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Booking.Status != "pending" || !resp.Payment.Required || resp.Payment.ID != "pi_"+resp.Booking.ID {
		t.Fatalf("unexpected response: %+v", resp)
	}
	stored, _ := f.store.Booking(resp.Booking.ID)
	if stored.PaymentIntentID != resp.Payment.ID {
		t.Fatalf("expected intent %s on booking, got %q", resp.Payment.ID, stored.PaymentIntentID)
	}

	// Cancelling the unpaid booking voids its intent.
	if _, err := f.svc.Cancel(context.Background(), stored.ID, "student-1", "changed plans"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := provider.cancelledIntents(); len(got) != 1 || got[0] != stored.PaymentIntentID {
		t.Fatalf("expected intent %s cancelled, got %v", stored.PaymentIntentID, got)
	}
}

func TestCreateBookingValidation(t *testing.T) {
	f := newFixture(t, booking.GuardLock, payments.DisabledProvider{})
	cases := []struct {
		name  string
		start time.Time
		d     time.Duration
		want  int
	}{
		{"end before start", sessionStart, -time.Hour, http.StatusBadRequest},
		{"in the past", time.Now().UTC().Add(-2 * time.Hour), time.Hour, http.StatusBadRequest},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			f.bookings.Create(rec, asAccount(bookRequest(t, c.start, c.d), "student-1", model.RoleStudent))
			if rec.Code != c.want {
				t.Fatalf("expected %d, got %d: %s", c.want, rec.Code, rec.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", jsonBody(t, map[string]string{
		"tutor_id":   "tutor-1",
		"start_time": sessionStart.Format(time.RFC3339),
		"end_time":   sessionStart.Add(time.Hour).Format(time.RFC3339),
		"subject":    "Chemistry",
	}))
	rec := httptest.NewRecorder()
	f.bookings.Create(rec, asAccount(req, "student-1", model.RoleStudent))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestBookingsRouteRequiresStudentToken(t *testing.T) {
	f := newFixture(t, booking.GuardLock, payments.DisabledProvider{})
	h := f.bookings.Bookings(testSecret)

	token, err := auth.SignHS256(auth.NewClaims("tutor-1", string(model.RoleTutor), "Ada", time.Now(), time.Hour), testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := bookRequest(t, sessionStart, time.Hour)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected tutor to be forbidden from booking, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected tutor to list bookings, got %d", rec.Code)
	}
}

func TestCancelBooking(t *testing.T) {
	f := newFixture(t, booking.GuardLock, payments.DisabledProvider{})
	f.store.PutBooking(activeBooking("b1", sessionStart, model.StatusConfirmed))

	cancel := func(actor string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/cancel", jsonBody(t, map[string]string{"booking_id": "b1", "reason": "conflict"}))
		rec := httptest.NewRecorder()
		f.bookings.Cancel(rec, asAccount(req, actor, model.RoleStudent))
		return rec
	}
	if rec := cancel("student-1"); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a stranger, got %d", rec.Code)
	}
	rec := cancel("student-9")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var v bookingView
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Status != "cancelled" || v.CancelReason != "conflict" || v.CancelledAt == "" {
		t.Fatalf("unexpected view: %+v", v)
	}
}

func TestAvailabilityCheckEndToEnd(t *testing.T) {
	f := newFixture(t, booking.GuardLock, payments.DisabledProvider{})
	start := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	f.store.PutBooking(activeBooking("s1", start, model.StatusConfirmed))

	check := func(from, to string) checkResponse {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/availability/check", jsonBody(t, map[string]string{
			"tutor_id": "tutor-1", "start_time": from, "end_time": to,
		}))
		rec := httptest.NewRecorder()
		f.avail.Check(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp checkResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return resp
	}

	busy := check("2024-01-15T14:30:00Z", "2024-01-15T15:30:00Z")
	if busy.Available || len(busy.Conflicts) != 1 || busy.Conflicts[0].BookingID != "s1" {
		t.Fatalf("expected conflict with s1, got %+v", busy)
	}
	if want := "Tutor is busy from 14:00 to 15:00 UTC due to a confirmed Math session"; busy.Conflicts[0].Message != want {
		t.Fatalf("unexpected message %q", busy.Conflicts[0].Message)
	}

	free := check("2024-01-15T10:00:00-05:00", "2024-01-15T11:00:00-05:00")
	if !free.Available || len(free.Conflicts) != 0 {
		t.Fatalf("expected available, got %+v", free)
	}
	if free.StartTime != "2024-01-15T15:00:00Z" {
		t.Fatalf("expected UTC normalized start, got %s", free.StartTime)
	}
}

func TestAvailabilityCheckRejectsInvertedInterval(t *testing.T) {
	f := newFixture(t, booking.GuardLock, payments.DisabledProvider{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/availability/check", jsonBody(t, map[string]string{
		"tutor_id": "tutor-1", "start_time": "2024-01-15T11:00:00Z", "end_time": "2024-01-15T10:00:00Z",
	}))
	rec := httptest.NewRecorder()
	f.avail.Check(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAvailabilityCheckFailsClosed(t *testing.T) {
	f := newFixture(t, booking.GuardLock, payments.DisabledProvider{})
	bad := activeBooking("bad", time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC), model.BookingStatus("booked"))
	f.store.PutBooking(bad)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/availability/check", jsonBody(t, map[string]string{
		"tutor_id": "tutor-1", "start_time": "2024-01-15T09:00:00Z", "end_time": "2024-01-15T10:00:00Z",
	}))
	rec := httptest.NewRecorder()
	f.avail.Check(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for inconsistent history, got %d", rec.Code)
	}
}

func TestAvailabilityNextAndSlots(t *testing.T) {
	f := newFixture(t, booking.GuardLock, payments.DisabledProvider{})
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	f.store.PutBooking(activeBooking("s1", day.Add(9*time.Hour), model.StatusConfirmed))

	rec := httptest.NewRecorder()
	f.avail.Next(rec, httptest.NewRequest(http.MethodGet, "/api/v1/availability/next?tutor_id=tutor-1&after=2024-01-15T09:00:00Z&duration_minutes=60", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var slot slotView
	if err := json.NewDecoder(rec.Body).Decode(&slot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if slot.StartTime != "2024-01-15T10:00:00Z" {
		t.Fatalf("expected 10:00 slot, got %+v", slot)
	}

	rec = httptest.NewRecorder()
	f.avail.Next(rec, httptest.NewRequest(http.MethodGet, "/api/v1/availability/next?tutor_id=tutor-1&after=2024-01-15T09:00:00Z&duration_minutes=60&lookahead_hours=1", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when nothing fits, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.avail.Slots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/availability/slots?tutor_id=tutor-1&date=2099-01-15&day_start=09:00&day_end=11:00&duration_minutes=60&step_minutes=60", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var slots []slotView
	if err := json.NewDecoder(rec.Body).Decode(&slots); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(slots) != 2 || slots[0].StartTime != "2099-01-15T09:00:00Z" {
		t.Fatalf("unexpected slots: %+v", slots)
	}
}

type fakeAccounts struct {
	byEmail map[string]model.Account
}

func (f *fakeAccounts) Create(_ context.Context, a model.Account) (model.Account, error) {
	key := strings.ToLower(a.Email)
	if _, ok := f.byEmail[key]; ok {
		return model.Account{}, storage.ErrDuplicate
	}
	a.ID = "acct-" + key
	f.byEmail[key] = a
	return a, nil
}

func (f *fakeAccounts) GetByEmail(_ context.Context, email string) (model.Account, error) {
	a, ok := f.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return model.Account{}, storage.ErrNotFound
	}
	return a, nil
}

func TestRegisterAndLogin(t *testing.T) {
	accounts := &fakeAccounts{byEmail: map[string]model.Account{}}
	h := NewAuthHandler(accounts, testSecret, time.Hour, discard)

	register := func(body map[string]string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.Register(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", jsonBody(t, body)))
		return rec
	}
	if rec := register(map[string]string{"email": "a@example.com", "password": "short", "role": "student"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for weak password, got %d", rec.Code)
	}
	if rec := register(map[string]string{"email": "a@example.com", "password": "long-enough", "role": "admin"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown role, got %d", rec.Code)
	}
	if rec := register(map[string]string{"email": "a@example.com", "password": "long-enough", "role": "student"}); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := register(map[string]string{"email": "A@example.com", "password": "long-enough", "role": "student"}); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", rec.Code)
	}
	if stored := accounts.byEmail["a@example.com"]; stored.PasswordHash == "long-enough" || stored.PasswordHash == "" {
		t.Fatal("password must be stored hashed")
	}

	login := func(password string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", jsonBody(t, map[string]string{"email": "a@example.com", "password": password})))
		return rec
	}
	if rec := login("wrong-password"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec := login("long-enough")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var tok tokenResponse
	if err := json.NewDecoder(rec.Body).Decode(&tok); err != nil {
		t.Fatalf("decode: %v", err)
	}
	claims, err := auth.ParseAndVerifyHS256(tok.AccessToken, testSecret, time.Now())
	if err != nil || claims.Role != "student" || claims.Sub != tok.AccountID {
		t.Fatalf("unexpected claims %+v (%v)", claims, err)
	}
}

type fakeTutors struct {
	tutors map[string]model.Tutor
}

func (f *fakeTutors) List(context.Context) ([]model.Tutor, error) {
	out := make([]model.Tutor, 0, len(f.tutors))
	for _, t := range f.tutors {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeTutors) Get(_ context.Context, id string) (model.Tutor, error) {
	t, ok := f.tutors[id]
	if !ok {
		return model.Tutor{}, storage.ErrNotFound
	}
	return t, nil
}

func (f *fakeTutors) Upsert(_ context.Context, t model.Tutor) (model.Tutor, error) {
	f.tutors[t.ID] = t
	return t, nil
}

func TestTutorCatalogAndProfile(t *testing.T) {
	store := &fakeTutors{tutors: map[string]model.Tutor{
		"t1": {ID: "t1", DisplayName: "Ada", Subjects: []string{"Math"}, HourlyRateCents: 3000, Rating: 4.5},
		"t2": {ID: "t2", DisplayName: "Marie", Subjects: []string{"Physics"}, HourlyRateCents: 5000, Rating: 4.9},
	}}
	h := NewTutorHandler(store, discard)

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tutors?subject=math", nil))
	var list []tutorView
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].ID != "t1" {
		t.Fatalf("unexpected list: %+v", list)
	}

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tutors?min_rating=9", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad filter, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tutors/profile?tutor_id=missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tutors/profile", jsonBody(t, map[string]any{
		"display_name":      "Grace",
		"subjects":          []string{"CS", " cs ", "Math"},
		"hourly_rate_cents": 4200,
		"timezone":          "UTC",
	}))
	rec = httptest.NewRecorder()
	h.Upsert(rec, asAccount(req, "t3", model.RoleTutor))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	saved := store.tutors["t3"]
	if len(saved.Subjects) != 2 || saved.Currency != "usd" {
		t.Fatalf("unexpected saved profile: %+v", saved)
	}
}
