package ontime

import (
	"math"
	"testing"
	"time"

	"github.com/example/freight-dispatch/internal/models"
)

func TestPickupZeroTolerance(t *testing.T) {
	scheduled := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	load := &models.Load{ScheduledPickup: scheduled}

	if v := Pickup(load); v != Unknown {
		t.Fatalf("expected unknown before arrival, got %s", v)
	}

	exact := scheduled
	load.ActualPickupArrival = &exact
	if v := Pickup(load); v != OnTime {
		t.Fatalf("arrival exactly at the appointment must be on time, got %s", v)
	}

	oneSecondLate := scheduled.Add(time.Second)
	load.ActualPickupArrival = &oneSecondLate
	if v := Pickup(load); v != Late {
		t.Fatalf("one second past the appointment must be late, got %s", v)
	}

	early := scheduled.Add(-10 * time.Minute)
	load.ActualPickupArrival = &early
	if v := Pickup(load); v != OnTime {
		t.Fatalf("early arrival must be on time, got %s", v)
	}
}

func TestDeliveryVerdict(t *testing.T) {
	scheduled := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	arrived := time.Date(2025, 6, 2, 9, 50, 0, 0, time.UTC)
	load := &models.Load{ScheduledDelivery: scheduled, ActualDeliveryArrival: &arrived}
	if v := Delivery(load); v != OnTime {
		t.Fatalf("expected on time, got %s", v)
	}
}

func TestDelayMinutes(t *testing.T) {
	scheduled := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	actual := scheduled.Add(time.Second)

	d := DelayMinutes(actual, scheduled)
	if math.Abs(d-1.0/60.0) > 1e-9 {
		t.Fatalf("expected ~0.0167 minutes, got %f", d)
	}

	early := scheduled.Add(-10 * time.Minute)
	if d := DelayMinutes(early, scheduled); d != -10 {
		t.Fatalf("expected -10, got %f", d)
	}
	if d := LateMinutes(early, scheduled); d != 0 {
		t.Fatalf("early arrival must contribute zero, got %f", d)
	}
	if d := LateMinutes(scheduled.Add(5*time.Minute), scheduled); d != 5 {
		t.Fatalf("expected 5, got %f", d)
	}
}

func TestVerdictString(t *testing.T) {
	if Unknown.Known() {
		t.Fatal("unknown must not report known")
	}
	if OnTime.String() != "on_time" || Late.String() != "late" || Unknown.String() != "unknown" {
		t.Fatalf("unexpected strings: %s %s %s", OnTime, Late, Unknown)
	}
}
