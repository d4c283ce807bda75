package booking

import "time"

// SessionCost prices a session at hourlyRateCents, rounded to the nearest cent
// with halves rounded up.
func SessionCost(hourlyRateCents int64, d time.Duration) int64 {
	if hourlyRateCents <= 0 || d <= 0 {
		return 0
	}
	seconds := int64(d / time.Second)
	return (hourlyRateCents*seconds + 1800) / 3600
}
