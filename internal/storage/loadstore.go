package storage

import (
	"errors"
	"sync"

	"github.com/example/freight-dispatch/internal/models"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict means a concurrent writer updated the load first.
	// Callers retry with freshly loaded state; the engine itself never does.
	ErrVersionConflict = errors.New("load version conflict")
)

// LoadStore defines persistence for the dispatch lifecycle.
type LoadStore interface {
	SaveLoad(l *models.Load) error
	// UpdateLoad applies an optimistic-concurrency check on l.Version and
	// bumps it on success.
	UpdateLoad(l *models.Load) error
	GetLoad(id string) (*models.Load, error)
	// ActiveLoadForVehicle resolves the in-progress load a position sample
	// belongs to when the feed only carries a vehicle id.
	ActiveLoadForVehicle(vehicleID string) (*models.Load, error)
	ListLoads() ([]*models.Load, error)

	AppendLocation(u models.LocationUpdate) error

	SaveFacility(f *models.Facility) error
	GetFacility(id string) (*models.Facility, error)
}

// MemoryStore keeps everything in maps; it backs local runs and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	loads      map[string]*models.Load
	facilities map[string]*models.Facility
	locations  []models.LocationUpdate
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		loads:      make(map[string]*models.Load),
		facilities: make(map[string]*models.Facility),
	}
}

func (m *MemoryStore) SaveLoad(l *models.Load) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.loads[l.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateLoad(l *models.Load) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.loads[l.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != l.Version {
		return ErrVersionConflict
	}
	l.Version++
	cp := *l
	m.loads[l.ID] = &cp
	return nil
}

func (m *MemoryStore) GetLoad(id string) (*models.Load, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.loads[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *MemoryStore) ActiveLoadForVehicle(vehicleID string) (*models.Load, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *models.Load
	for _, l := range m.loads {
		if l.VehicleID != vehicleID || !l.Active() {
			continue
		}
		if best == nil || l.ScheduledDelivery.Before(best.ScheduledDelivery) {
			best = l
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *MemoryStore) ListLoads() ([]*models.Load, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Load, 0, len(m.loads))
	for _, l := range m.loads {
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) AppendLocation(u models.LocationUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations = append(m.locations, u)
	return nil
}

// Locations returns the append-only position history, oldest first.
func (m *MemoryStore) Locations() []models.LocationUpdate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.LocationUpdate, len(m.locations))
	copy(out, m.locations)
	return out
}

func (m *MemoryStore) SaveFacility(f *models.Facility) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *f
	m.facilities[f.ID] = &cp
	return nil
}

func (m *MemoryStore) GetFacility(id string) (*models.Facility, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.facilities[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f
	return &cp, nil
}
