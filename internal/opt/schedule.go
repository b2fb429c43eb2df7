package opt

import (
	"fmt"
	"math"
)

// Schedule selects how the chance of taking a non-improving move evolves.
type Schedule string

const (
	// ScheduleRising divides delta by ln(1+n). Since delta <= 0 the
	// acceptance chance grows toward 1 as the run goes on.
	ScheduleRising Schedule = "rising"
	// ScheduleCooling uses the temperature T0/ln(1+n), so worse moves get
	// rarer as the run goes on.
	ScheduleCooling Schedule = "cooling"
)

// DefaultInitialTemp is T0 for ScheduleCooling.
const DefaultInitialTemp = 1000.0

// ParseSchedule accepts the schedule names used in config and requests.
// The empty string selects ScheduleRising.
func ParseSchedule(v string) (Schedule, error) {
	switch Schedule(v) {
	case "", ScheduleRising:
		return ScheduleRising, nil
	case ScheduleCooling:
		return ScheduleCooling, nil
	}
	return "", fmt.Errorf("%w: unknown schedule %q", ErrConfiguration, v)
}

// acceptance is the probability of taking a move with delta <= 0 at
// iteration n (1-based).
func (s Schedule) acceptance(delta float64, n int, t0 float64) float64 {
	if s == ScheduleCooling {
		t := t0 / math.Log(1+float64(n))
		return math.Exp(delta / t)
	}
	lambda := math.Log(1 + float64(n))
	return math.Exp(delta / lambda)
}
