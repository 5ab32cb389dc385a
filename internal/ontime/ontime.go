// Package ontime derives on-time verdicts and delay magnitudes from a
// load's scheduled vs actual timestamps. The policy is zero-tolerance:
// arriving one second past the appointment is late.
package ontime

import (
	"time"

	"github.com/example/freight-dispatch/internal/models"
)

// Verdict is a three-valued on-time result. Unknown means the leg has no
// actual arrival yet; callers must not collapse it into Late.
type Verdict int

const (
	Unknown Verdict = iota
	OnTime
	Late
)

func (v Verdict) Known() bool { return v != Unknown }

func (v Verdict) String() string {
	switch v {
	case OnTime:
		return "on_time"
	case Late:
		return "late"
	default:
		return "unknown"
	}
}

// Pickup evaluates the pickup leg of a load.
func Pickup(l *models.Load) Verdict {
	return verdict(l.ActualPickupArrival, l.ScheduledPickup)
}

// Delivery evaluates the delivery leg of a load.
func Delivery(l *models.Load) Verdict {
	return verdict(l.ActualDeliveryArrival, l.ScheduledDelivery)
}

func verdict(actual *time.Time, scheduled time.Time) Verdict {
	if actual == nil || scheduled.IsZero() {
		return Unknown
	}
	if !actual.After(scheduled) {
		return OnTime
	}
	return Late
}

// DelayMinutes is (actual - scheduled) in minutes; zero or negative means
// early or exactly on time.
func DelayMinutes(actual, scheduled time.Time) float64 {
	return actual.Sub(scheduled).Minutes()
}

// LateMinutes is the positive delay only. Early arrivals contribute zero so
// they cannot offset lateness in an average.
func LateMinutes(actual, scheduled time.Time) float64 {
	if d := DelayMinutes(actual, scheduled); d > 0 {
		return d
	}
	return 0
}
