package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/auth"
	"github.com/md-rashed-zaman/tutorbook/libs/httpx"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/payments"
)

type BookingHandler struct {
	svc      *booking.Service
	payments payments.Provider
	logger   *slog.Logger
}

func NewBookingHandler(svc *booking.Service, provider payments.Provider, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, payments: provider, logger: logger}
}

type createBookingRequest struct {
	TutorID   string `json:"tutor_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Subject   string `json:"subject"`
	Notes     string `json:"notes"`
}

type createBookingResponse struct {
	Booking bookingView     `json:"booking"`
	Payment payments.Intent `json:"payment"`
}

type cancelBookingRequest struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.TutorID = strings.TrimSpace(req.TutorID)
	req.Subject = strings.TrimSpace(req.Subject)
	if req.TutorID == "" || req.Subject == "" {
		httpx.WriteError(w, http.StatusBadRequest, "tutor_id and subject are required")
		return
	}
	start, err := parseTime("start_time", req.StartTime)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := parseTime("end_time", req.EndTime)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	res, err := h.svc.Book(ctx, booking.BookRequest{
		TutorID:   req.TutorID,
		StudentID: claims.Sub,
		Start:     start,
		End:       end,
		Subject:   req.Subject,
		Notes:     strings.TrimSpace(req.Notes),
	})
	var wc *booking.WriteConflictError
	if errors.As(err, &wc) {
		h.logger.Warn("booking race caught by store",
			"tutor_id", wc.TutorID,
			"start_time", formatTime(wc.Candidate.Start),
			"end_time", formatTime(wc.Candidate.End),
			"guard", string(h.svc.Guard()),
			"conflicts", len(wc.Conflicts),
		)
		writeConflict(w, availability.ConflictReport{TutorID: wc.TutorID, Candidate: wc.Candidate, Conflicts: wc.Conflicts})
		return
	}
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if res.Booking == nil {
		writeConflict(w, res.Report)
		return
	}

	created := *res.Booking
	intent, err := h.payments.CreateSessionPayment(ctx, created)
	if err != nil {
		h.logger.Error("payment setup failed; releasing slot", "booking_id", created.ID, "err", err)
		h.release(ctx, created.ID)
		httpx.WriteError(w, http.StatusBadGateway, "payment provider unavailable")
		return
	}
	if intent.ID != "" {
		attached, err := h.svc.AttachPayment(ctx, created.ID, intent.ID)
		if err != nil {
			h.logger.Error("failed to record payment intent; releasing slot", "booking_id", created.ID, "intent_id", intent.ID, "err", err)
			h.abandon(ctx, intent.ID)
			h.release(ctx, created.ID)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to record payment")
			return
		}
		created = attached
	}
	if !intent.Required {
		confirmed, err := h.svc.Confirm(ctx, created.ID)
		if err != nil {
			writeDomainError(w, h.logger, err)
			return
		}
		created = confirmed
	}

	h.logger.Info("session booked",
		"booking_id", created.ID,
		"tutor_id", created.TutorID,
		"status", string(created.Status),
		"payment_required", intent.Required,
	)
	httpx.WriteJSON(w, http.StatusCreated, createBookingResponse{
		Booking: newBookingView(created),
		Payment: intent,
	})
}

func (h *BookingHandler) release(ctx context.Context, bookingID string) {
	// The request context may already be done; the compensation must still run.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := h.svc.Cancel(ctx, bookingID, booking.SystemActor, "payment setup failed"); err != nil {
		h.logger.Error("failed to release booking", "booking_id", bookingID, "err", err)
	}
}

func (h *BookingHandler) abandon(ctx context.Context, intentID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.payments.CancelSessionPayment(ctx, intentID); err != nil {
		h.logger.Error("failed to cancel payment intent", "intent_id", intentID, "err", err)
	}
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	bookings, err := h.svc.ListForAccount(r.Context(), claims.Sub, limit)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	items := make([]bookingView, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, newBookingView(b))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req cancelBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "booking_id required")
		return
	}
	b, err := h.svc.Cancel(r.Context(), req.BookingID, claims.Sub, req.Reason)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newBookingView(b))
}

// Bookings serves GET and POST on the bookings collection.
func (h *BookingHandler) Bookings(secret string) http.HandlerFunc {
	create := auth.RequireAuth(secret, string(model.RoleStudent))(h.Create)
	list := auth.RequireAuth(secret)(h.List)
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			list(w, r)
		case http.MethodPost:
			create(w, r)
		default:
			httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}
