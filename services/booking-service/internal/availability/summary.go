package availability

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/model"
)

// Severity distinguishes a paid-for session from one still awaiting payment.
// Both block the slot.
type Severity string

const (
	SeverityHard Severity = "hard"
	SeveritySoft Severity = "soft"
)

// Summary is the user-facing view of one conflicting booking.
type Summary struct {
	BookingID string              `json:"booking_id"`
	Start     time.Time           `json:"start_time"`
	End       time.Time           `json:"end_time"`
	Subject   string              `json:"subject"`
	Status    model.BookingStatus `json:"status"`
	Severity  Severity            `json:"severity"`
	Message   string              `json:"message"`
}

func Summaries(report ConflictReport) []Summary {
	out := make([]Summary, 0, len(report.Conflicts))
	for _, b := range report.Conflicts {
		s := Summary{
			BookingID: b.ID,
			Start:     b.Interval.Start.UTC(),
			End:       b.Interval.End.UTC(),
			Subject:   b.Subject,
			Status:    b.Status,
			Severity:  SeveritySoft,
		}
		if b.Status == model.StatusConfirmed {
			s.Severity = SeverityHard
		}
		s.Message = s.Describe()
		out = append(out, s)
	}
	return out
}

// Describe renders s like "Tutor is busy from 14:00 to 15:00 UTC due to a
// confirmed Math session". Dates are added when the booking spans days.
func (s Summary) Describe() string {
	start, end := s.Start.UTC(), s.End.UTC()
	layout := "15:04"
	if start.YearDay() != end.YearDay() || start.Year() != end.Year() {
		layout = "2006-01-02 15:04"
	}
	subject := s.Subject
	if subject == "" {
		subject = "tutoring"
	}
	return fmt.Sprintf("Tutor is busy from %s to %s UTC due to a %s %s session",
		start.Format(layout), end.Format(layout), s.Status, subject)
}
