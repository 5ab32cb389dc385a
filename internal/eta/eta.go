// Package eta predicts delivery arrival times. The prediction feeds the
// current_eta display field and the late-risk flag only; the geofence
// engine never consults it.
package eta

import (
	"fmt"
	"sync"
	"time"

	"github.com/example/freight-dispatch/internal/geo"
	"github.com/example/freight-dispatch/internal/models"
)

// Client is the routing collaborator used for travel-time lookups.
type Client interface {
	TravelSeconds(from, to models.Coord) (float64, error)
}

// Cache is a small in-memory TTL cache for travel-time lookups, keyed by
// the coordinate pair. Routing calls are slow and positions repeat.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	seconds float64
	ts      time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f->%.6f,%.6f", a.Lat, a.Lng, b.Lat, b.Lng)
}

func (c *Cache) Get(a, b models.Coord) (float64, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return 0, false
	}
	return e.seconds, true
}

func (c *Cache) Set(a, b models.Coord, seconds float64) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{seconds: seconds, ts: time.Now()}
	c.mu.Unlock()
}

// Estimator combines an optional routing client with a haversine fallback.
type Estimator struct {
	Client          Client // optional
	Cache           *Cache // optional
	DefaultSpeedMPH float64
}

// TravelSeconds returns the predicted drive time between two points. It
// never fails: when the routing client is absent or errors, the straight
// line distance over the default speed stands in.
func (e *Estimator) TravelSeconds(from, to models.Coord) float64 {
	if e.Cache != nil {
		if v, ok := e.Cache.Get(from, to); ok {
			return v
		}
	}
	if e.Client != nil {
		if v, err := e.Client.TravelSeconds(from, to); err == nil {
			if e.Cache != nil {
				e.Cache.Set(from, to, v)
			}
			return v
		}
	}
	return fallbackSeconds(from, to, e.DefaultSpeedMPH)
}

// Arrival predicts the clock time a vehicle at from reaches to.
func (e *Estimator) Arrival(from, to models.Coord, now time.Time) time.Time {
	return now.Add(time.Duration(e.TravelSeconds(from, to) * float64(time.Second)))
}

func fallbackSeconds(from, to models.Coord, speedMPH float64) float64 {
	if speedMPH <= 0 {
		speedMPH = 45 // highway-ish default for linehaul
	}
	return geo.Miles(from, to) / speedMPH * 3600
}
