package geo

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/example/freight-dispatch/internal/models"
)

// EarthRadiusMiles is the spherical earth radius used for all distance math.
const EarthRadiusMiles = 3958.8

// Miles returns the great-circle distance between two points in miles.
func Miles(a, b models.Coord) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMiles * c
}

// WithinRadius reports whether p is inside the circular geofence centered at
// center. The boundary is inclusive: exactly radiusMiles away is inside.
func WithinRadius(p, center models.Coord, radiusMiles float64) bool {
	return Miles(p, center) <= radiusMiles
}

// ErrInvalidCoordinate marks a malformed position rejected before it
// reaches the tracking engine.
var ErrInvalidCoordinate = fmt.Errorf("invalid coordinate")

// Validate rejects non-finite or out-of-range coordinates.
func Validate(p models.Coord) error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) {
		return fmt.Errorf("%w: non-finite lat=%v lng=%v", ErrInvalidCoordinate, p.Lat, p.Lng)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidCoordinate, p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidCoordinate, p.Lng)
	}
	return nil
}

// Fleet tracks last-known vehicle positions and answers nearest-vehicle
// queries for dispatch.
type Fleet interface {
	Upsert(v models.Vehicle)
	Nearby(lat, lng float64, limit int) []models.Vehicle
}

// Index is the in-memory Fleet used when Redis is not configured.
type Index struct {
	mu       sync.RWMutex
	vehicles map[string]models.Vehicle
}

func NewIndex() *Index {
	return &Index{vehicles: make(map[string]models.Vehicle)}
}

func (g *Index) Upsert(v models.Vehicle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v.Updated = time.Now()
	g.vehicles[v.ID] = v
}

// naive scan; fleets are small enough that a geo index is not worth it here
func (g *Index) Nearby(lat, lng float64, limit int) []models.Vehicle {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type pair struct {
		v     models.Vehicle
		miles float64
	}
	arr := make([]pair, 0, len(g.vehicles))
	from := models.Coord{Lat: lat, Lng: lng}
	for _, v := range g.vehicles {
		arr = append(arr, pair{v, Miles(from, v.Loc)})
	}
	n := limit
	if n > len(arr) {
		n = len(arr)
	}
	// partial selection sort for top-N
	for i := 0; i < n; i++ {
		minIdx := i
		for j := i + 1; j < len(arr); j++ {
			if arr[j].miles < arr[minIdx].miles {
				minIdx = j
			}
		}
		arr[i], arr[minIdx] = arr[minIdx], arr[i]
	}
	out := make([]models.Vehicle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, arr[i].v)
	}
	return out
}
