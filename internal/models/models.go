package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LoadStatus is the dispatch lifecycle state of a Load.
type LoadStatus string

const (
	StatusScheduled LoadStatus = "scheduled"
	StatusInTransit LoadStatus = "in_transit"
	StatusDelivered LoadStatus = "delivered"
	StatusCancelled LoadStatus = "cancelled"
)

// advances holds the only forward transitions the tracking engine may take.
// Cancellation is a dispatcher action and is deliberately absent here.
var advances = map[LoadStatus]LoadStatus{
	StatusScheduled: StatusInTransit,
	StatusInTransit: StatusDelivered,
}

// CanAdvanceTo reports whether the engine may move a load from s to next.
func (s LoadStatus) CanAdvanceTo(next LoadStatus) bool {
	return advances[s] == next
}

func (s LoadStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Client is reference data; loads and facilities belong to a client.
type Client struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ContactName  string    `json:"contact_name,omitempty"`
	ContactPhone string    `json:"contact_phone,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Facility is a pickup or delivery site. Center is nil until the address
// has been geocoded; a facility without a center cannot be geofenced.
type Facility struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	City        string    `json:"city,omitempty"`
	State       string    `json:"state,omitempty"`
	ZipCode     string    `json:"zip_code,omitempty"`
	Center      *Coord    `json:"center,omitempty"`
	RadiusMiles float64   `json:"geofence_radius_miles"`
	ClientID    string    `json:"client_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// HasGeofence reports whether the facility can be evaluated for
// arrival/departure. Absent coordinates mean "unknown", not "outside".
func (f *Facility) HasGeofence() bool {
	return f != nil && f.Center != nil && f.RadiusMiles > 0
}

// Load is the aggregate root of the dispatch lifecycle. The four actual-event
// timestamps are written by the tracking engine or by explicit dispatcher
// correction; they only ever move forward.
type Load struct {
	ID              string `json:"id"`
	ReferenceNumber string `json:"reference_number"`
	ClientID        string `json:"client_id"`
	DriverID        string `json:"driver_id,omitempty"`
	VehicleID       string `json:"vehicle_id,omitempty"`

	PickupFacility    *Facility `json:"pickup_facility"`
	DeliveryFacility  *Facility `json:"delivery_facility"`
	ScheduledPickup   time.Time `json:"scheduled_pickup_time"`
	ScheduledDelivery time.Time `json:"scheduled_delivery_time"`

	ActualPickupArrival     *time.Time `json:"actual_pickup_arrival,omitempty"`
	ActualPickupDeparture   *time.Time `json:"actual_pickup_departure,omitempty"`
	ActualDeliveryArrival   *time.Time `json:"actual_delivery_arrival,omitempty"`
	ActualDeliveryDeparture *time.Time `json:"actual_delivery_departure,omitempty"`

	CurrentETA *time.Time `json:"current_eta,omitempty"`
	Status     LoadStatus `json:"status"`

	// Version supports optimistic concurrency in the store; bumped on every
	// successful update.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AtRisk reports whether the predicted arrival is already past the
// scheduled delivery time.
func (l *Load) AtRisk() bool {
	return l.CurrentETA != nil && l.CurrentETA.After(l.ScheduledDelivery)
}

// Active reports whether the load still has lifecycle work ahead of it.
func (l *Load) Active() bool {
	return l.Status == StatusScheduled || l.Status == StatusInTransit
}

type Driver struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Vehicle carries last-known telemetry only; it does not own loads.
type Vehicle struct {
	ID           string    `json:"id"`
	LicensePlate string    `json:"license_plate,omitempty"`
	Loc          Coord     `json:"loc"`
	SpeedMPH     float64   `json:"speed_mph"`
	Heading      float64   `json:"heading"`
	Updated      time.Time `json:"updated"`
}

// LocationUpdate is an immutable, append-only position record.
type LocationUpdate struct {
	LoadID    string    `json:"load_id,omitempty"`
	VehicleID string    `json:"vehicle_id"`
	Loc       Coord     `json:"loc"`
	SpeedMPH  float64   `json:"speed_mph,omitempty"`
	Heading   float64   `json:"heading,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DriverPerformance is a per-driver, per-date materialized rollup. It is
// derived from load history and can always be recomputed.
type DriverPerformance struct {
	DriverID            string    `json:"driver_id"`
	Date                time.Time `json:"date"`
	LoadsCompleted      int       `json:"loads_completed"`
	OnTimePickups       int       `json:"on_time_pickups"`
	OnTimeDeliveries    int       `json:"on_time_deliveries"`
	AverageDelayMinutes float64   `json:"average_delay_minutes"`
}

func (p DriverPerformance) OnTimePickupPct() float64 {
	if p.LoadsCompleted == 0 {
		return 0
	}
	return float64(p.OnTimePickups) / float64(p.LoadsCompleted) * 100
}

func (p DriverPerformance) OnTimeDeliveryPct() float64 {
	if p.LoadsCompleted == 0 {
		return 0
	}
	return float64(p.OnTimeDeliveries) / float64(p.LoadsCompleted) * 100
}
