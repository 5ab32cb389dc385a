package tracker

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/example/freight-dispatch/internal/geo"
	"github.com/example/freight-dispatch/internal/models"
	"github.com/example/freight-dispatch/internal/observability"
)

// EventKind identifies which geofence transition fired, if any.
type EventKind string

const (
	EventNone          EventKind = "none"
	EventPickupEntry   EventKind = "pickup_entry"
	EventPickupExit    EventKind = "pickup_exit"
	EventDeliveryEntry EventKind = "delivery_entry"
	EventDeliveryExit  EventKind = "delivery_exit"
)

// Result describes the outcome of a single position evaluation. When two
// checks fire on one call (pickup exit straight into a delivery fence),
// Event holds the later one; the load carries every mutation either way.
type Result struct {
	LoadID     string            `json:"load_id"`
	Event      EventKind         `json:"event"`
	Facility   *models.Facility  `json:"facility,omitempty"`
	OccurredAt time.Time         `json:"occurred_at,omitempty"`
	NewStatus  models.LoadStatus `json:"new_status,omitempty"`
	Changed    bool              `json:"status_changed"`
}

// Engine decides arrival/departure transitions from vehicle positions.
// It mutates the load in place; persisting the change is the caller's job.
type Engine struct {
	logger *slog.Logger
	now    func() time.Time
	locks  *keyedLocks
}

type Option func(*Engine)

// WithClock overrides the engine clock, used by tests to pin timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		locks:  newKeyedLocks(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnPositionUpdate runs the four geofence checks for one position sample.
// The checks are gated so repeated identical input is a no-op, status never
// regresses, and a facility without geofence data is skipped silently.
// Malformed coordinates are rejected before any state is touched.
func (e *Engine) OnPositionUpdate(load *models.Load, pos models.Coord) (Result, error) {
	if load == nil {
		return Result{Event: EventNone}, fmt.Errorf("on position update: nil load")
	}
	res := Result{LoadID: load.ID, Event: EventNone}
	if err := geo.Validate(pos); err != nil {
		return res, fmt.Errorf("on position update: load %s: %w", load.ID, err)
	}

	// Updates to one load are serialized; concurrent pings for the same
	// load must not both observe an unset arrival.
	unlock := e.locks.lock(load.ID)
	defer unlock()

	if load.Status.Terminal() {
		return res, nil
	}

	e.checkPickup(load, pos, &res)
	e.checkDelivery(load, pos, &res)

	if res.Changed {
		load.UpdatedAt = res.OccurredAt
		observability.TransitionsTotal.WithLabelValues(string(res.Event)).Inc()
		e.logger.Info("geofence transition",
			"load_id", load.ID,
			"event", string(res.Event),
			"facility", facilityName(res.Facility),
			"status", string(load.Status),
		)
	}
	return res, nil
}

func (e *Engine) checkPickup(load *models.Load, pos models.Coord, res *Result) {
	fac := load.PickupFacility
	if !fac.HasGeofence() {
		return
	}
	inside := geo.WithinRadius(pos, *fac.Center, fac.RadiusMiles)

	switch {
	case inside && load.ActualPickupArrival == nil && load.Status == models.StatusScheduled:
		// Arrival alone does not advance status; only departure does.
		now := e.now()
		load.ActualPickupArrival = &now
		res.record(EventPickupEntry, fac, now, load.Status)

	case !inside && load.ActualPickupArrival != nil && load.ActualPickupDeparture == nil:
		if !load.Status.CanAdvanceTo(models.StatusInTransit) {
			return
		}
		now := e.now()
		load.ActualPickupDeparture = &now
		load.Status = models.StatusInTransit
		res.record(EventPickupExit, fac, now, load.Status)
	}
}

func (e *Engine) checkDelivery(load *models.Load, pos models.Coord, res *Result) {
	fac := load.DeliveryFacility
	if !fac.HasGeofence() {
		return
	}
	inside := geo.WithinRadius(pos, *fac.Center, fac.RadiusMiles)

	switch {
	case inside && load.ActualDeliveryArrival == nil && load.Status == models.StatusInTransit:
		now := e.now()
		load.ActualDeliveryArrival = &now
		res.record(EventDeliveryEntry, fac, now, load.Status)

	case !inside && load.ActualDeliveryArrival != nil && load.ActualDeliveryDeparture == nil:
		if !load.Status.CanAdvanceTo(models.StatusDelivered) {
			return
		}
		now := e.now()
		load.ActualDeliveryDeparture = &now
		load.Status = models.StatusDelivered
		res.record(EventDeliveryExit, fac, now, load.Status)
	}
}

func (r *Result) record(ev EventKind, fac *models.Facility, at time.Time, status models.LoadStatus) {
	r.Event = ev
	r.Facility = fac
	r.OccurredAt = at
	r.NewStatus = status
	r.Changed = true
}

func facilityName(f *models.Facility) string {
	if f == nil {
		return ""
	}
	return f.Name
}
