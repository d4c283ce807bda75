package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/httpx"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/model"
)

const (
	defaultLookahead = 14 * 24 * time.Hour
	maxLookahead     = 90 * 24 * time.Hour
)

type AvailabilityHandler struct {
	engine *availability.Engine
	logger *slog.Logger
	now    func() time.Time
}

func NewAvailabilityHandler(engine *availability.Engine, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{engine: engine, logger: logger, now: time.Now}
}

type checkRequest struct {
	TutorID   string `json:"tutor_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type checkResponse struct {
	TutorID   string                 `json:"tutor_id"`
	StartTime string                 `json:"start_time"`
	EndTime   string                 `json:"end_time"`
	Available bool                   `json:"available"`
	Conflicts []availability.Summary `json:"conflicts"`
}

// Check answers whether a candidate interval is free. A conflict is a
// normal 200 answer here; only booking turns it into 409.
func (h *AvailabilityHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.TutorID = strings.TrimSpace(req.TutorID)
	if req.TutorID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "tutor_id required")
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
	candidate, err := model.NewTimeInterval(start, end)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	report, err := h.engine.Check(r.Context(), req.TutorID, candidate)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, checkResponse{
		TutorID:   req.TutorID,
		StartTime: formatTime(candidate.Start),
		EndTime:   formatTime(candidate.End),
		Available: report.Available,
		Conflicts: availability.Summaries(report),
	})
}

// Next returns the earliest free interval of duration_minutes starting at or
// after the given instant (default now) within lookahead_hours.
func (h *AvailabilityHandler) Next(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tutorID := strings.TrimSpace(q.Get("tutor_id"))
	if tutorID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "tutor_id required")
		return
	}
	after := h.now().UTC()
	if raw := strings.TrimSpace(q.Get("after")); raw != "" {
		t, err := parseTime("after", raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		after = t
	}
	duration, err := minutesParam(q.Get("duration_minutes"), 60, 8*60)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid duration_minutes")
		return
	}
	lookahead := defaultLookahead
	if raw := strings.TrimSpace(q.Get("lookahead_hours")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || time.Duration(n)*time.Hour > maxLookahead {
			httpx.WriteError(w, http.StatusBadRequest, "invalid lookahead_hours")
			return
		}
		lookahead = time.Duration(n) * time.Hour
	}

	slot, err := h.engine.NextSlot(r.Context(), tutorID, after, duration, lookahead)
	if errors.Is(err, availability.ErrNoSlot) {
		httpx.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newSlotView(slot))
}

// Slots lists free slots on one day between day_start and day_end, read as
// wall-clock times in tz (default UTC). Results are always UTC.
func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tutorID := strings.TrimSpace(q.Get("tutor_id"))
	dateStr := strings.TrimSpace(q.Get("date"))
	if tutorID == "" || dateStr == "" {
		httpx.WriteError(w, http.StatusBadRequest, "tutor_id and date are required")
		return
	}
	duration, err := minutesParam(q.Get("duration_minutes"), 60, 8*60)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid duration_minutes")
		return
	}
	step, err := minutesParam(q.Get("step_minutes"), 30, 120)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid step_minutes")
		return
	}
	loc := time.UTC
	if tz := strings.TrimSpace(q.Get("tz")); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "unknown tz")
			return
		}
	}
	window, err := dayWindow(dateStr, valueOr(q.Get("day_start"), "09:00"), valueOr(q.Get("day_end"), "17:00"), loc)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	slots, err := h.engine.Slots(r.Context(), tutorID, window, duration, step)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	items := make([]slotView, 0, len(slots))
	for _, s := range slots {
		items = append(items, newSlotView(s))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func dayWindow(dateStr, startClock, endClock string, loc *time.Location) (model.TimeInterval, error) {
	day, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		return model.TimeInterval{}, errors.New("invalid date (want YYYY-MM-DD)")
	}
	from, err := time.Parse("15:04", startClock)
	if err != nil {
		return model.TimeInterval{}, errors.New("invalid day_start (want HH:MM)")
	}
	to, err := time.Parse("15:04", endClock)
	if err != nil {
		return model.TimeInterval{}, errors.New("invalid day_end (want HH:MM)")
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), from.Hour(), from.Minute(), 0, 0, loc)
	end := time.Date(day.Year(), day.Month(), day.Day(), to.Hour(), to.Minute(), 0, 0, loc)
	iv, err := model.NewTimeInterval(start, end)
	if err != nil {
		return model.TimeInterval{}, errors.New("day_end must be after day_start")
	}
	return iv, nil
}

func minutesParam(raw string, fallback, max int) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Duration(fallback) * time.Minute, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > max {
		return 0, errors.New("out of range")
	}
	return time.Duration(n) * time.Minute, nil
}

func valueOr(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}
