package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/auth"
	"github.com/md-rashed-zaman/tutorbook/libs/httpx"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/catalog"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/model"
)

type TutorStore interface {
	List(ctx context.Context) ([]model.Tutor, error)
	Get(ctx context.Context, id string) (model.Tutor, error)
	Upsert(ctx context.Context, t model.Tutor) (model.Tutor, error)
}

type TutorHandler struct {
	tutors TutorStore
	logger *slog.Logger
}

func NewTutorHandler(tutors TutorStore, logger *slog.Logger) *TutorHandler {
	return &TutorHandler{tutors: tutors, logger: logger}
}

type tutorView struct {
	ID              string   `json:"id"`
	DisplayName     string   `json:"display_name"`
	Bio             string   `json:"bio"`
	Subjects        []string `json:"subjects"`
	HourlyRateCents int64    `json:"hourly_rate_cents"`
	Currency        string   `json:"currency"`
	Rating          float64  `json:"rating"`
	Timezone        string   `json:"timezone"`
}

func newTutorView(t model.Tutor) tutorView {
	subjects := t.Subjects
	if subjects == nil {
		subjects = []string{}
	}
	return tutorView{
		ID:              t.ID,
		DisplayName:     t.DisplayName,
		Bio:             t.Bio,
		Subjects:        subjects,
		HourlyRateCents: t.HourlyRateCents,
		Currency:        t.Currency,
		Rating:          t.Rating,
		Timezone:        t.Timezone,
	}
}

type profileRequest struct {
	DisplayName     string   `json:"display_name"`
	Bio             string   `json:"bio"`
	Subjects        []string `json:"subjects"`
	HourlyRateCents int64    `json:"hourly_rate_cents"`
	Currency        string   `json:"currency"`
	Timezone        string   `json:"timezone"`
}

func (h *TutorHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := catalog.ParseFilter(r.URL.Query())
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	tutors, err := h.tutors.List(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	page := catalog.Apply(tutors, filter)
	items := make([]tutorView, 0, len(page))
	for _, t := range page {
		items = append(items, newTutorView(t))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *TutorHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("tutor_id"))
	if id == "" {
		httpx.WriteError(w, http.StatusBadRequest, "tutor_id required")
		return
	}
	t, err := h.tutors.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newTutorView(t))
}

// Upsert saves the calling tutor's own profile.
func (h *TutorHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req profileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	t := model.Tutor{
		ID:              claims.Sub,
		AccountID:       claims.Sub,
		DisplayName:     strings.TrimSpace(req.DisplayName),
		Bio:             strings.TrimSpace(req.Bio),
		Subjects:        normalizeSubjects(req.Subjects),
		HourlyRateCents: req.HourlyRateCents,
		Currency:        strings.ToLower(strings.TrimSpace(req.Currency)),
		Timezone:        strings.TrimSpace(req.Timezone),
	}
	if t.DisplayName == "" {
		t.DisplayName = claims.Name
	}
	if t.Currency == "" {
		t.Currency = "usd"
	}
	if t.Timezone == "" {
		t.Timezone = "UTC"
	}
	switch {
	case t.DisplayName == "":
		httpx.WriteError(w, http.StatusBadRequest, "display_name required")
		return
	case len(t.Subjects) == 0:
		httpx.WriteError(w, http.StatusBadRequest, "at least one subject required")
		return
	case t.HourlyRateCents < 0:
		httpx.WriteError(w, http.StatusBadRequest, "hourly_rate_cents must not be negative")
		return
	}
	if _, err := time.LoadLocation(t.Timezone); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "unknown timezone")
		return
	}

	saved, err := h.tutors.Upsert(r.Context(), t)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newTutorView(saved))
}

// Profile serves GET and POST on the profile path.
func (h *TutorHandler) Profile(secret string) http.HandlerFunc {
	upsert := auth.RequireAuth(secret, string(model.RoleTutor))(h.Upsert)
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.Get(w, r)
		case http.MethodPost:
			upsert(w, r)
		default:
			httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

func normalizeSubjects(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
