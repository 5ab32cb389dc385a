// Package assign suggests vehicles for unassigned loads and records
// dispatcher assignment decisions. Suggestions rank the nearest vehicles by
// predicted drive time to the pickup facility.
package assign

import (
	"fmt"
	"sort"

	"github.com/example/freight-dispatch/internal/eta"
	"github.com/example/freight-dispatch/internal/geo"
	"github.com/example/freight-dispatch/internal/models"
	"github.com/example/freight-dispatch/internal/storage"
)

type Candidate struct {
	VehicleID  string  `json:"vehicle_id"`
	Miles      float64 `json:"miles_to_pickup"`
	ETASeconds float64 `json:"eta_seconds"`
}

type Service struct {
	Fleet geo.Fleet
	ETA   *eta.Estimator
	Store storage.LoadStore
	TopN  int
}

// Suggest ranks the closest vehicles for a load's pickup. A pickup facility
// without coordinates cannot be ranked against.
func (s *Service) Suggest(load *models.Load) ([]Candidate, error) {
	if !load.PickupFacility.HasGeofence() {
		return nil, fmt.Errorf("suggest vehicles: load %s: pickup facility has no coordinates", load.ID)
	}
	topN := s.TopN
	if topN <= 0 {
		topN = 10
	}
	center := *load.PickupFacility.Center
	vehicles := s.Fleet.Nearby(center.Lat, center.Lng, topN)

	out := make([]Candidate, 0, len(vehicles))
	for _, v := range vehicles {
		out = append(out, Candidate{
			VehicleID:  v.ID,
			Miles:      geo.Miles(v.Loc, center),
			ETASeconds: s.ETA.TravelSeconds(v.Loc, center),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ETASeconds < out[j].ETASeconds })
	return out, nil
}

// Assign records a dispatcher's vehicle/driver choice on a load.
func (s *Service) Assign(loadID, vehicleID, driverID string) (*models.Load, error) {
	load, err := s.Store.GetLoad(loadID)
	if err != nil {
		return nil, fmt.Errorf("assign load %s: %w", loadID, err)
	}
	if load.Status.Terminal() {
		return nil, fmt.Errorf("assign load %s: load is %s", loadID, load.Status)
	}
	load.VehicleID = vehicleID
	load.DriverID = driverID
	if err := s.Store.UpdateLoad(load); err != nil {
		return nil, fmt.Errorf("assign load %s: %w", loadID, err)
	}
	return load, nil
}
