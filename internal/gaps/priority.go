package gaps

import "time"

// Priority scores a gap 1-10 from its duration, how soon it occurs, and the
// historical fill rate for that provider/time-of-day. It is a pure function:
// the same inputs always yield the same score.
//
//   - duration: longer gaps score higher, capped at one hour of credit
//   - proximity: near-term gaps are more actionable
//   - fill rate: slots that historically never fill are not worth staff
//     attention and score lower
func Priority(duration time.Duration, timeUntil time.Duration, fillRate float64) int {
	if fillRate < 0 {
		fillRate = 0
	}
	if fillRate > 1 {
		fillRate = 1
	}

	durationScore := duration.Minutes() / 60 * 4
	if durationScore > 4 {
		durationScore = 4
	}

	var proximityScore float64
	switch {
	case timeUntil <= 24*time.Hour:
		proximityScore = 3
	case timeUntil <= 72*time.Hour:
		proximityScore = 2
	case timeUntil <= 7*24*time.Hour:
		proximityScore = 1
	}

	score := int(durationScore + proximityScore + fillRate*3 + 0.5)
	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}
	return score
}
