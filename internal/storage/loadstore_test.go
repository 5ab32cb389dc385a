package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/example/freight-dispatch/internal/models"
)

func storedLoad(id, vehicleID string, status models.LoadStatus, delivery time.Time) *models.Load {
	return &models.Load{
		ID:                id,
		VehicleID:         vehicleID,
		Status:            status,
		ScheduledDelivery: delivery,
	}
}

func TestMemoryStoreVersionConflict(t *testing.T) {
	m := NewMemoryStore()
	l := storedLoad("ld1", "v1", models.StatusScheduled, time.Now())
	if err := m.SaveLoad(l); err != nil {
		t.Fatalf("save: %v", err)
	}

	a, _ := m.GetLoad("ld1")
	b, _ := m.GetLoad("ld1")

	a.Status = models.StatusInTransit
	if err := m.UpdateLoad(a); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if a.Version != 1 {
		t.Fatalf("expected version bump, got %d", a.Version)
	}

	b.Status = models.StatusCancelled
	if err := m.UpdateLoad(b); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	cur, _ := m.GetLoad("ld1")
	if cur.Status != models.StatusInTransit {
		t.Fatalf("stale write won: %s", cur.Status)
	}
}

func TestMemoryStoreCopiesOnRead(t *testing.T) {
	m := NewMemoryStore()
	_ = m.SaveLoad(storedLoad("ld1", "v1", models.StatusScheduled, time.Now()))

	a, _ := m.GetLoad("ld1")
	a.Status = models.StatusDelivered // never written back

	cur, _ := m.GetLoad("ld1")
	if cur.Status != models.StatusScheduled {
		t.Fatalf("read handed out shared state: %s", cur.Status)
	}
}

func TestActiveLoadForVehicle(t *testing.T) {
	m := NewMemoryStore()
	now := time.Now()
	_ = m.SaveLoad(storedLoad("done", "v1", models.StatusDelivered, now.Add(-time.Hour)))
	_ = m.SaveLoad(storedLoad("later", "v1", models.StatusScheduled, now.Add(4*time.Hour)))
	_ = m.SaveLoad(storedLoad("sooner", "v1", models.StatusInTransit, now.Add(time.Hour)))
	_ = m.SaveLoad(storedLoad("other", "v2", models.StatusScheduled, now))

	got, err := m.ActiveLoadForVehicle("v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "sooner" {
		t.Fatalf("expected the load due first, got %s", got.ID)
	}

	if _, err := m.ActiveLoadForVehicle("v3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAppendLocationHistory(t *testing.T) {
	m := NewMemoryStore()
	for i := 0; i < 3; i++ {
		_ = m.AppendLocation(models.LocationUpdate{VehicleID: "v1", Timestamp: time.Now()})
	}
	if got := len(m.Locations()); got != 3 {
		t.Fatalf("expected 3 records, got %d", got)
	}
}
