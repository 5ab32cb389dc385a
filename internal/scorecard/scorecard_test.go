package scorecard

import (
	"math"
	"testing"
	"time"

	"github.com/example/freight-dispatch/internal/models"
)

var base = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

// completedLoad builds a delivered load with the given lateness per leg;
// zero or negative lateness means on time.
func completedLoad(driverID string, pickupLate, deliveryLate time.Duration) *models.Load {
	schedPickup := base
	schedDelivery := base.Add(8 * time.Hour)
	pArr := schedPickup.Add(pickupLate)
	dArr := schedDelivery.Add(deliveryLate)
	return &models.Load{
		DriverID:              driverID,
		Status:                models.StatusDelivered,
		ScheduledPickup:       schedPickup,
		ScheduledDelivery:     schedDelivery,
		ActualPickupArrival:   &pArr,
		ActualDeliveryArrival: &dArr,
	}
}

func window() Window {
	return Window{Start: base.AddDate(0, 0, -1), End: base.AddDate(0, 0, 1)}
}

func TestOverallScoreArithmetic(t *testing.T) {
	// ten loads: every pickup on time, three deliveries late
	var loads []*models.Load
	for i := 0; i < 7; i++ {
		loads = append(loads, completedLoad("d1", 0, -5*time.Minute))
	}
	for i := 0; i < 3; i++ {
		loads = append(loads, completedLoad("d1", 0, 20*time.Minute))
	}

	stats := Summarize(loads, window(), ByDriver)["d1"]
	if stats == nil {
		t.Fatal("driver missing from summary")
	}
	if stats.Loads != 10 || stats.OnTimePickups != 10 || stats.OnTimeDeliveries != 7 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.FullyOnTime != 7 {
		t.Fatalf("expected 7 fully on-time, got %d", stats.FullyOnTime)
	}
	if got := stats.OverallScore(); math.Abs(got-85.0) > 1e-9 {
		t.Fatalf("expected overall score 85.0, got %f", got)
	}
}

func TestAvgDelayNeverNegative(t *testing.T) {
	loads := []*models.Load{
		completedLoad("d1", -30*time.Minute, -45*time.Minute), // very early
		completedLoad("d1", 0, 10*time.Minute),
	}
	stats := Summarize(loads, window(), ByDriver)["d1"]
	if got := stats.AvgDelayMinutes(); got != 10 {
		t.Fatalf("expected 10 (single late leg), got %f", got)
	}

	allEarly := []*models.Load{completedLoad("d2", -time.Hour, -time.Hour)}
	stats = Summarize(allEarly, window(), ByDriver)["d2"]
	if got := stats.AvgDelayMinutes(); got != 0 {
		t.Fatalf("expected 0 with no late legs, got %f", got)
	}
}

func TestIncompleteLoadsExcluded(t *testing.T) {
	inFlight := completedLoad("d1", 0, 0)
	inFlight.ActualDeliveryArrival = nil
	inFlight.Status = models.StatusInTransit

	loads := []*models.Load{inFlight, completedLoad("d1", 0, 0)}
	stats := Summarize(loads, window(), ByDriver)["d1"]
	if stats.Loads != 1 {
		t.Fatalf("in-flight load must not enter the denominator, got %d", stats.Loads)
	}
	if got := stats.DeliveryPct(); got != 100 {
		t.Fatalf("expected 100%%, got %f", got)
	}
}

func TestWindowExcludesOldLoads(t *testing.T) {
	old := completedLoad("d1", 0, 0)
	past := base.AddDate(0, 0, -40)
	old.ActualDeliveryArrival = &past

	stats := Summarize([]*models.Load{old}, window(), ByDriver)
	if len(stats) != 0 {
		t.Fatalf("load outside the window must be excluded: %+v", stats)
	}
}

func TestRankTieBrokenByVolume(t *testing.T) {
	perDriver := map[string]*Stats{}
	for i := 0; i < 5; i++ {
		perDriver["busy"] = addTo(perDriver["busy"], completedLoad("busy", 0, 0))
	}
	for i := 0; i < 2; i++ {
		perDriver["quiet"] = addTo(perDriver["quiet"], completedLoad("quiet", 0, 0))
	}
	perDriver["late"] = addTo(perDriver["late"], completedLoad("late", time.Hour, time.Hour))

	entries := Rank(perDriver)
	if entries[0].DriverID != "busy" || entries[0].Rank != 1 {
		t.Fatalf("expected busy first, got %s", entries[0].DriverID)
	}
	if entries[1].DriverID != "quiet" {
		t.Fatalf("expected quiet second, got %s", entries[1].DriverID)
	}
	if entries[2].DriverID != "late" || entries[2].Rank != 3 {
		t.Fatalf("expected late last, got %s", entries[2].DriverID)
	}
}

func addTo(s *Stats, l *models.Load) *Stats {
	if s == nil {
		s = &Stats{}
	}
	s.add(l)
	return s
}

func TestDailyRollup(t *testing.T) {
	day2 := completedLoad("d1", 0, 30*time.Minute)
	next := day2.ActualDeliveryArrival.AddDate(0, 0, 1)
	day2.ActualDeliveryArrival = &next

	loads := []*models.Load{
		completedLoad("d1", 0, 0),
		completedLoad("d1", 0, 0),
		day2,
		completedLoad("other", 0, 0),
	}
	w := Window{Start: base.AddDate(0, 0, -1), End: base.AddDate(0, 0, 2)}
	rollup := DailyRollup(loads, "d1", w)
	if len(rollup) != 2 {
		t.Fatalf("expected 2 days, got %d", len(rollup))
	}
	if rollup[0].LoadsCompleted != 2 || rollup[0].OnTimeDeliveries != 2 {
		t.Fatalf("day 1 wrong: %+v", rollup[0])
	}
	if rollup[1].LoadsCompleted != 1 || rollup[1].AverageDelayMinutes != 30 {
		t.Fatalf("day 2 wrong: %+v", rollup[1])
	}
	if !rollup[0].Date.Before(rollup[1].Date) {
		t.Fatal("rollup not ordered by date")
	}
}

func TestBuildSummary(t *testing.T) {
	lateETA := base.Add(12 * time.Hour)
	active := &models.Load{
		ID: "act1", DriverID: "d1", Status: models.StatusInTransit,
		ScheduledDelivery: base.Add(8 * time.Hour),
		CurrentETA:        &lateETA,
	}
	var loads []*models.Load
	for i := 0; i < 4; i++ {
		loads = append(loads, completedLoad("d1", 0, 0))
	}
	loads = append(loads, active)

	sum := BuildSummary(loads, window(), "")
	if sum.ActiveLoads != 1 {
		t.Fatalf("expected 1 active load, got %d", sum.ActiveLoads)
	}
	if len(sum.AtRiskLoadIDs) != 1 || sum.AtRiskLoadIDs[0] != "act1" {
		t.Fatalf("expected act1 flagged at risk, got %v", sum.AtRiskLoadIDs)
	}
	if sum.CompletedLoads != 4 || sum.OnTimeDeliveryPct != 100 {
		t.Fatalf("unexpected totals: %+v", sum)
	}
	if len(sum.TopDrivers) != 1 || sum.TopDrivers[0].DriverID != "d1" {
		t.Fatalf("expected d1 in top drivers, got %+v", sum.TopDrivers)
	}

	// drivers below the ranking floor stay off the board
	few := []*models.Load{completedLoad("d2", 0, 0)}
	sum = BuildSummary(few, window(), "")
	if len(sum.TopDrivers) != 0 {
		t.Fatalf("driver with 1 load must not rank, got %+v", sum.TopDrivers)
	}
}
