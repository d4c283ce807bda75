package model

import (
	"fmt"
	"time"
)

// TimeInterval is the half-open range [Start, End) of absolute instants.
type TimeInterval struct {
	Start time.Time
	End   time.Time
}

// InvalidIntervalError reports an interval whose start is not before its end.
type InvalidIntervalError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidIntervalError) Error() string {
	return fmt.Sprintf("invalid interval: start %s is not before end %s",
		e.Start.UTC().Format(time.RFC3339), e.End.UTC().Format(time.RFC3339))
}

// NewTimeInterval normalizes both bounds to UTC. Bounds are never swapped.
func NewTimeInterval(start, end time.Time) (TimeInterval, error) {
	iv := TimeInterval{Start: start.UTC(), End: end.UTC()}
	if err := iv.Validate(); err != nil {
		return TimeInterval{}, err
	}
	return iv, nil
}

func (i TimeInterval) Validate() error {
	if !i.Start.Before(i.End) {
		return &InvalidIntervalError{Start: i.Start, End: i.End}
	}
	return nil
}

// Overlaps reports whether [i.Start, i.End) and [o.Start, o.End) share an
// instant. Intervals that only touch do not overlap.
func (i TimeInterval) Overlaps(o TimeInterval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i TimeInterval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

func (i TimeInterval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// Within reports whether i lies entirely inside outer.
func (i TimeInterval) Within(outer TimeInterval) bool {
	return !i.Start.Before(outer.Start) && !i.End.After(outer.End)
}

func (i TimeInterval) String() string {
	return i.Start.UTC().Format(time.RFC3339) + "/" + i.End.UTC().Format(time.RFC3339)
}
