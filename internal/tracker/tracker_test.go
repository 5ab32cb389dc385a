package tracker

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/freight-dispatch/internal/models"
)

var (
	atlanta  = models.Coord{Lat: 33.7490, Lng: -84.3880}
	smyrna   = models.Coord{Lat: 33.9, Lng: -84.9} // ~12 miles out
	savannah = models.Coord{Lat: 32.0809, Lng: -81.0912}
)

func testEngine(now time.Time) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(logger, WithClock(func() time.Time { return now }))
}

func testLoad() *models.Load {
	return &models.Load{
		ID:     "ld1",
		Status: models.StatusScheduled,
		PickupFacility: &models.Facility{
			ID: "f-pick", Name: "Atlanta DC",
			Center: &models.Coord{Lat: atlanta.Lat, Lng: atlanta.Lng}, RadiusMiles: 0.3,
		},
		DeliveryFacility: &models.Facility{
			ID: "f-del", Name: "Savannah Port",
			Center: &models.Coord{Lat: savannah.Lat, Lng: savannah.Lng}, RadiusMiles: 0.3,
		},
		ScheduledPickup:   time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC),
		ScheduledDelivery: time.Date(2025, 6, 2, 18, 0, 0, 0, time.UTC),
	}
}

func TestPickupEntryAtCenter(t *testing.T) {
	now := time.Date(2025, 6, 2, 7, 55, 0, 0, time.UTC)
	e := testEngine(now)
	load := testLoad()

	res, err := e.OnPositionUpdate(load, atlanta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Event != EventPickupEntry {
		t.Fatalf("expected pickup_entry, got %s", res.Event)
	}
	if load.ActualPickupArrival == nil || !load.ActualPickupArrival.Equal(now) {
		t.Fatalf("arrival not recorded: %v", load.ActualPickupArrival)
	}
	// arrival alone must not advance status
	if load.Status != models.StatusScheduled {
		t.Fatalf("status advanced on arrival: %s", load.Status)
	}
	if res.Facility == nil || res.Facility.ID != "f-pick" {
		t.Fatalf("wrong facility in result: %+v", res.Facility)
	}
}

func TestPickupExitAdvancesToInTransit(t *testing.T) {
	now := time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC)
	e := testEngine(now)
	load := testLoad()
	arr := now.Add(-20 * time.Minute)
	load.ActualPickupArrival = &arr

	res, err := e.OnPositionUpdate(load, smyrna)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Event != EventPickupExit {
		t.Fatalf("expected pickup_exit, got %s", res.Event)
	}
	if load.Status != models.StatusInTransit {
		t.Fatalf("expected in_transit, got %s", load.Status)
	}
	if load.ActualPickupDeparture == nil {
		t.Fatal("departure not recorded")
	}
}

func TestEntryIdempotentUnderRepeatedInput(t *testing.T) {
	now := time.Date(2025, 6, 2, 7, 55, 0, 0, time.UTC)
	e := testEngine(now)
	load := testLoad()

	if res, _ := e.OnPositionUpdate(load, atlanta); res.Event != EventPickupEntry {
		t.Fatalf("expected first call to fire entry, got %s", res.Event)
	}
	first := *load.ActualPickupArrival

	res, err := e.OnPositionUpdate(load, atlanta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Event != EventNone || res.Changed {
		t.Fatalf("second identical call must not fire, got %s", res.Event)
	}
	if !load.ActualPickupArrival.Equal(first) {
		t.Fatalf("arrival timestamp mutated on repeat: %v", load.ActualPickupArrival)
	}
}

func TestDeliveryRefusedBeforeInTransit(t *testing.T) {
	e := testEngine(time.Now().UTC())
	load := testLoad()

	// vehicle at the delivery fence while still scheduled: parked equipment,
	// stale assignment, whatever. Must not record a delivery arrival.
	res, err := e.OnPositionUpdate(load, savannah)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Event != EventNone {
		t.Fatalf("expected none, got %s", res.Event)
	}
	if load.ActualDeliveryArrival != nil {
		t.Fatal("delivery arrival recorded before pickup departure")
	}
}

func TestFullLifecycle(t *testing.T) {
	clock := time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(logger, WithClock(func() time.Time { return clock }))
	load := testLoad()

	steps := []struct {
		pos   models.Coord
		event EventKind
		after models.LoadStatus
	}{
		{smyrna, EventNone, models.StatusScheduled},
		{atlanta, EventPickupEntry, models.StatusScheduled},
		{smyrna, EventPickupExit, models.StatusInTransit},
		{savannah, EventDeliveryEntry, models.StatusInTransit},
		{smyrna, EventDeliveryExit, models.StatusDelivered},
		{atlanta, EventNone, models.StatusDelivered},
	}
	for i, step := range steps {
		clock = clock.Add(30 * time.Minute)
		res, err := e.OnPositionUpdate(load, step.pos)
		if err != nil {
			t.Fatalf("step %d: unexpected error: %v", i, err)
		}
		if res.Event != step.event {
			t.Fatalf("step %d: expected %s, got %s", i, step.event, res.Event)
		}
		if load.Status != step.after {
			t.Fatalf("step %d: expected status %s, got %s", i, step.after, load.Status)
		}
	}
	if load.ActualPickupDeparture.Before(*load.ActualPickupArrival) {
		t.Fatal("pickup departure precedes arrival")
	}
	if load.ActualDeliveryArrival.Before(*load.ActualPickupDeparture) {
		t.Fatal("delivery arrival precedes pickup departure")
	}
}

func TestStatusNeverRegresses(t *testing.T) {
	e := testEngine(time.Now().UTC())
	load := testLoad()
	now := time.Now().UTC()
	load.Status = models.StatusDelivered
	load.ActualPickupArrival = &now
	load.ActualPickupDeparture = &now
	load.ActualDeliveryArrival = &now
	load.ActualDeliveryDeparture = &now

	for _, pos := range []models.Coord{atlanta, smyrna, savannah} {
		res, err := e.OnPositionUpdate(load, pos)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Changed || load.Status != models.StatusDelivered {
			t.Fatalf("delivered load mutated by position %+v", pos)
		}
	}
}

func TestCancelledLoadUntouched(t *testing.T) {
	e := testEngine(time.Now().UTC())
	load := testLoad()
	arr := time.Now().UTC()
	load.ActualPickupArrival = &arr
	load.Status = models.StatusCancelled

	// outside the pickup fence: without the terminal guard this would
	// record a departure and resurrect the load as in_transit
	res, err := e.OnPositionUpdate(load, smyrna)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Changed || load.Status != models.StatusCancelled || load.ActualPickupDeparture != nil {
		t.Fatalf("cancelled load mutated: status=%s", load.Status)
	}
}

func TestMissingGeofenceSkipsLeg(t *testing.T) {
	e := testEngine(time.Now().UTC())
	load := testLoad()
	load.PickupFacility.Center = nil

	res, err := e.OnPositionUpdate(load, atlanta)
	if err != nil {
		t.Fatalf("missing geofence must not be an error, got %v", err)
	}
	if res.Event != EventNone || load.ActualPickupArrival != nil {
		t.Fatalf("leg without geofence fired: %s", res.Event)
	}
}

func TestInvalidCoordinatesRejected(t *testing.T) {
	e := testEngine(time.Now().UTC())
	load := testLoad()

	_, err := e.OnPositionUpdate(load, models.Coord{Lat: 95, Lng: 0})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if load.ActualPickupArrival != nil || load.Status != models.StatusScheduled {
		t.Fatal("state mutated despite validation error")
	}
}

func TestPickupExitStraightIntoDeliveryFence(t *testing.T) {
	// pickup and delivery fences can sit across the street from each other;
	// one sample outside pickup and inside delivery fires both checks
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	e := testEngine(now)
	load := testLoad()
	arr := now.Add(-time.Hour)
	load.ActualPickupArrival = &arr

	res, err := e.OnPositionUpdate(load, savannah)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Event != EventDeliveryEntry {
		t.Fatalf("expected delivery_entry reported, got %s", res.Event)
	}
	if load.ActualPickupDeparture == nil || load.ActualDeliveryArrival == nil {
		t.Fatal("expected both pickup departure and delivery arrival recorded")
	}
	if load.Status != models.StatusInTransit {
		t.Fatalf("expected in_transit, got %s", load.Status)
	}
}
