// Package scorecard rolls per-load on-time outcomes up into per-driver and
// per-date statistics for dashboards and driver rankings.
package scorecard

import (
	"sort"
	"time"

	"github.com/example/freight-dispatch/internal/models"
	"github.com/example/freight-dispatch/internal/ontime"
)

// Window is a half-open-free date range: Start and End are both inclusive.
type Window struct {
	Start time.Time
	End   time.Time
}

// LastDays builds a window covering the previous n days up to now.
func LastDays(n int, now time.Time) Window {
	return Window{Start: now.AddDate(0, 0, -n), End: now}
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

type GroupBy int

const (
	ByDriver GroupBy = iota
	ByDate
)

// Stats aggregates one group of completed loads. A load joins the aggregate
// only once both actual-arrival timestamps exist; loads still waiting on
// actual data are left out of the denominators rather than counted late.
type Stats struct {
	Loads            int
	OnTimePickups    int
	OnTimeDeliveries int
	FullyOnTime      int

	lateLegs    int
	lateMinutes float64
}

func (s *Stats) PickupPct() float64 {
	if s.Loads == 0 {
		return 0
	}
	return float64(s.OnTimePickups) / float64(s.Loads) * 100
}

func (s *Stats) DeliveryPct() float64 {
	if s.Loads == 0 {
		return 0
	}
	return float64(s.OnTimeDeliveries) / float64(s.Loads) * 100
}

// OverallScore is the scorecard ranking metric.
func (s *Stats) OverallScore() float64 {
	return (s.PickupPct() + s.DeliveryPct()) / 2
}

// AvgDelayMinutes averages delay over late legs only; early arrivals
// contribute nothing, so the result is never negative.
func (s *Stats) AvgDelayMinutes() float64 {
	if s.lateLegs == 0 {
		return 0
	}
	return s.lateMinutes / float64(s.lateLegs)
}

func (s *Stats) add(l *models.Load) {
	s.Loads++
	pickup := ontime.Pickup(l)
	delivery := ontime.Delivery(l)
	if pickup == ontime.OnTime {
		s.OnTimePickups++
	}
	if delivery == ontime.OnTime {
		s.OnTimeDeliveries++
	}
	if pickup == ontime.OnTime && delivery == ontime.OnTime {
		s.FullyOnTime++
	}
	if pickup == ontime.Late {
		s.lateLegs++
		s.lateMinutes += ontime.LateMinutes(*l.ActualPickupArrival, l.ScheduledPickup)
	}
	if delivery == ontime.Late {
		s.lateLegs++
		s.lateMinutes += ontime.LateMinutes(*l.ActualDeliveryArrival, l.ScheduledDelivery)
	}
}

// Summarize groups completed loads inside the window. Group keys are driver
// ids for ByDriver and "2006-01-02" delivery-arrival dates for ByDate.
func Summarize(loads []*models.Load, w Window, groupBy GroupBy) map[string]*Stats {
	out := make(map[string]*Stats)
	for _, l := range loads {
		if !counted(l, w) {
			continue
		}
		var key string
		switch groupBy {
		case ByDate:
			key = l.ActualDeliveryArrival.Format("2006-01-02")
		default:
			key = l.DriverID
		}
		st, ok := out[key]
		if !ok {
			st = &Stats{}
			out[key] = st
		}
		st.add(l)
	}
	return out
}

func counted(l *models.Load, w Window) bool {
	if l.ActualPickupArrival == nil || l.ActualDeliveryArrival == nil {
		return false
	}
	return w.Contains(*l.ActualDeliveryArrival)
}

// Entry is one ranked scorecard row.
type Entry struct {
	DriverID string
	Stats    *Stats
	Score    float64
	Rank     int
}

// Rank orders drivers by overall score, breaking ties by load volume so the
// busier of two equally reliable drivers ranks first.
func Rank(perDriver map[string]*Stats) []Entry {
	entries := make([]Entry, 0, len(perDriver))
	for id, st := range perDriver {
		entries = append(entries, Entry{DriverID: id, Stats: st, Score: st.OverallScore()})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].Stats.Loads != entries[j].Stats.Loads {
			return entries[i].Stats.Loads > entries[j].Stats.Loads
		}
		return entries[i].DriverID < entries[j].DriverID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// DailyRollup materializes DriverPerformance rows for one driver from load
// history. The output can always be recomputed; it is a cache, not truth.
func DailyRollup(loads []*models.Load, driverID string, w Window) []models.DriverPerformance {
	var mine []*models.Load
	for _, l := range loads {
		if l.DriverID == driverID {
			mine = append(mine, l)
		}
	}
	perDate := Summarize(mine, w, ByDate)

	days := make([]string, 0, len(perDate))
	for d := range perDate {
		days = append(days, d)
	}
	sort.Strings(days)

	out := make([]models.DriverPerformance, 0, len(days))
	for _, d := range days {
		st := perDate[d]
		date, _ := time.Parse("2006-01-02", d)
		out = append(out, models.DriverPerformance{
			DriverID:            driverID,
			Date:                date,
			LoadsCompleted:      st.Loads,
			OnTimePickups:       st.OnTimePickups,
			OnTimeDeliveries:    st.OnTimeDeliveries,
			AverageDelayMinutes: st.AvgDelayMinutes(),
		})
	}
	return out
}
