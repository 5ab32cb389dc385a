package geo

import (
	"math"
	"testing"

	"github.com/example/freight-dispatch/internal/models"
)

func TestMilesZero(t *testing.T) {
	a := models.Coord{Lat: 33.7490, Lng: -84.3880}
	if d := Miles(a, a); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestMilesSymmetry(t *testing.T) {
	a := models.Coord{Lat: 33.7490, Lng: -84.3880}
	b := models.Coord{Lat: 33.9, Lng: -84.9}
	ab, ba := Miles(a, b), Miles(b, a)
	if math.Abs(ab-ba) > 1e-9 {
		t.Fatalf("distance not symmetric: %f vs %f", ab, ba)
	}
	// Atlanta downtown to Smyrna-ish is roughly a dozen miles
	if ab < 10 || ab > 15 {
		t.Fatalf("unexpected distance %f miles", ab)
	}
}

func TestWithinRadiusBoundaryInclusive(t *testing.T) {
	center := models.Coord{Lat: 33.7490, Lng: -84.3880}
	// move due north by exactly 0.3 miles of arc
	deg := 0.3 / EarthRadiusMiles * 180 / math.Pi
	onBoundary := models.Coord{Lat: center.Lat + deg, Lng: center.Lng}
	if !WithinRadius(onBoundary, center, 0.3) {
		t.Fatalf("point exactly on the boundary must be inside")
	}
	justOutside := models.Coord{Lat: center.Lat + deg*1.001, Lng: center.Lng}
	if WithinRadius(justOutside, center, 0.3) {
		t.Fatalf("point past the boundary must be outside")
	}
}

func TestValidate(t *testing.T) {
	bad := []models.Coord{
		{Lat: math.NaN(), Lng: 0},
		{Lat: 0, Lng: math.Inf(1)},
		{Lat: 91, Lng: 0},
		{Lat: -91, Lng: 0},
		{Lat: 0, Lng: 181},
		{Lat: 0, Lng: -181},
	}
	for _, c := range bad {
		if err := Validate(c); err == nil {
			t.Fatalf("expected error for %+v", c)
		}
	}
	if err := Validate(models.Coord{Lat: 33.7490, Lng: -84.3880}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIndexNearbyOrdersByDistance(t *testing.T) {
	idx := NewIndex()
	idx.Upsert(models.Vehicle{ID: "far", Loc: models.Coord{Lat: 35, Lng: -84}})
	idx.Upsert(models.Vehicle{ID: "near", Loc: models.Coord{Lat: 33.75, Lng: -84.39}})
	got := idx.Nearby(33.7490, -84.3880, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 vehicles, got %d", len(got))
	}
	if got[0].ID != "near" {
		t.Fatalf("expected nearest first, got %s", got[0].ID)
	}
}
