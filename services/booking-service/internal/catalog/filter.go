package catalog

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/model"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Filter narrows the tutor catalog. Zero values match everything.
type Filter struct {
	Subject      string
	Query        string
	MaxRateCents int64
	MinRating    float64
	Limit        int
	Offset       int
}

// ParseFilter reads subject, q, max_rate_cents, min_rating, limit and offset.
func ParseFilter(values url.Values) (Filter, error) {
	f := Filter{
		Subject: strings.TrimSpace(values.Get("subject")),
		Query:   strings.TrimSpace(values.Get("q")),
		Limit:   DefaultLimit,
	}
	if raw := strings.TrimSpace(values.Get("max_rate_cents")); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return Filter{}, fmt.Errorf("invalid max_rate_cents %q", raw)
		}
		f.MaxRateCents = n
	}
	if raw := strings.TrimSpace(values.Get("min_rating")); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil || r < 0 || r > 5 {
			return Filter{}, fmt.Errorf("invalid min_rating %q", raw)
		}
		f.MinRating = r
	}
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Filter{}, fmt.Errorf("invalid limit %q", raw)
		}
		f.Limit = min(n, MaxLimit)
	}
	if raw := strings.TrimSpace(values.Get("offset")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Filter{}, fmt.Errorf("invalid offset %q", raw)
		}
		f.Offset = n
	}
	return f, nil
}

func (f Filter) Match(t model.Tutor) bool {
	if f.Subject != "" && !t.Teaches(f.Subject) {
		return false
	}
	if f.MaxRateCents > 0 && t.HourlyRateCents > f.MaxRateCents {
		return false
	}
	if t.Rating < f.MinRating {
		return false
	}
	if f.Query != "" && !matchesQuery(t, strings.ToLower(f.Query)) {
		return false
	}
	return true
}

// Apply returns the page of tutors matching f, best rated first, then
// cheapest, then by id. The input slice is not modified.
func Apply(tutors []model.Tutor, f Filter) []model.Tutor {
	matched := make([]model.Tutor, 0, len(tutors))
	for _, t := range tutors {
		if f.Match(t) {
			matched = append(matched, t)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		if a.HourlyRateCents != b.HourlyRateCents {
			return a.HourlyRateCents < b.HourlyRateCents
		}
		return a.ID < b.ID
	})

	if f.Offset >= len(matched) {
		return []model.Tutor{}
	}
	matched = matched[f.Offset:]
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

func matchesQuery(t model.Tutor, q string) bool {
	if strings.Contains(strings.ToLower(t.DisplayName), q) || strings.Contains(strings.ToLower(t.Bio), q) {
		return true
	}
	for _, s := range t.Subjects {
		if strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}
