package geo

import (
	"context"
	"errors"
	"math"
	"testing"

	"fieldsched/internal/model"
)

var (
	aarhus  = model.GeoPoint{Lat: 56.1629, Lng: 10.2039}
	aalborg = model.GeoPoint{Lat: 57.0488, Lng: 9.9217}
)

func TestHaversine(t *testing.T) {
	if d := HaversineM(aarhus, aarhus); d != 0 {
		t.Fatalf("zero-distance = %f", d)
	}
	// Aarhus to Aalborg is roughly 100 km as the crow flies.
	km := HaversineKm(aarhus, aalborg)
	if km < 95 || km > 105 {
		t.Fatalf("Aarhus-Aalborg = %f km", km)
	}
}

func TestRoadFactorTiers(t *testing.T) {
	if f := RoadFactorMinPerKm(5); f != 3.0 {
		t.Fatalf("short hop factor = %f", f)
	}
	// A 30 km trip sits in the blended band.
	if f := RoadFactorMinPerKm(30); f < 1.5 || f > 2.0 {
		t.Fatalf("30 km factor = %f, want within [1.5, 2.0]", f)
	}
	if f := RoadFactorMinPerKm(150); f != 1.1 {
		t.Fatalf("highway factor = %f", f)
	}
	// The blend meets the highway tier at its boundary.
	if f := RoadFactorMinPerKm(99.999); math.Abs(f-1.1) > 0.01 {
		t.Fatalf("blend endpoint = %f", f)
	}
}

func TestFallbackEstimate(t *testing.T) {
	est := FallbackEstimate(aarhus, aalborg)
	km := float64(est.DistanceM) / 1000
	minPerKm := float64(est.DurationSec) / 60 / km
	if minPerKm < 1.05 || minPerKm > 2.0 {
		t.Fatalf("fallback pace = %f min/km", minPerKm)
	}
}

type stubRouteProvider struct {
	est   TravelEstimate
	err   error
	calls int
}

func (s *stubRouteProvider) Route(_ context.Context, _, _ model.GeoPoint) (TravelEstimate, error) {
	s.calls++
	return s.est, s.err
}

func TestEstimatorCachesProvider(t *testing.T) {
	p := &stubRouteProvider{est: TravelEstimate{DistanceM: 12000, DurationSec: 900}}
	e := NewEstimator(p, NewMemoryTravelCache(), 100, 100, 2)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		got, err := e.Estimate(ctx, aarhus, aalborg)
		if err != nil {
			t.Fatalf("Estimate: %v", err)
		}
		if got != p.est {
			t.Fatalf("got %+v", got)
		}
	}
	if p.calls != 1 {
		t.Fatalf("provider called %d times, want 1 (cached)", p.calls)
	}
}

func TestEstimatorFallsBack(t *testing.T) {
	p := &stubRouteProvider{err: errors.New("osrm down")}
	e := NewEstimator(p, NewMemoryTravelCache(), 100, 100, 2)

	got, err := e.Estimate(context.Background(), aarhus, aalborg)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if got.DurationSec <= 0 || got.DistanceM <= 0 {
		t.Fatalf("fallback estimate = %+v", got)
	}
	// Failure result is cached too, so the dead provider is not hammered.
	if _, err := e.Estimate(context.Background(), aarhus, aalborg); err != nil {
		t.Fatalf("second Estimate: %v", err)
	}
	if p.calls != 1 {
		t.Fatalf("provider called %d times, want 1", p.calls)
	}
}

type stubGeocoder struct {
	pts map[string]*model.GeoPoint
}

func (s *stubGeocoder) Geocode(_ context.Context, address string) (*model.GeoPoint, error) {
	return s.pts[address], nil
}

func TestGeocoderResolve(t *testing.T) {
	p := &stubGeocoder{pts: map[string]*model.GeoPoint{"known": &aalborg}}
	g := NewGeocoder(p, aarhus, 100, 100)

	pt, resolved := g.Resolve(context.Background(), "known")
	if !resolved || pt != aalborg {
		t.Fatalf("Resolve(known) = %+v, %v", pt, resolved)
	}
	pt, resolved = g.Resolve(context.Background(), "unknown street 7")
	if resolved || pt != aarhus {
		t.Fatalf("Resolve(unknown) = %+v, %v, want fallback depot", pt, resolved)
	}
	if _, resolved := g.Resolve(context.Background(), ""); resolved {
		t.Fatal("empty address must not resolve")
	}
}

func TestResolveSnapshotFillsCoordinates(t *testing.T) {
	p := &stubGeocoder{pts: map[string]*model.GeoPoint{"Kystvejen 1": &aalborg}}
	g := NewGeocoder(p, aarhus, 100, 100)
	snap := model.Snapshot{
		Jobs: []model.Job{
			{ID: "a", Address: "Kystvejen 1"},
			{ID: "b", Address: "nowhere"},
			{ID: "c", Location: &aarhus},
		},
		Workers: []model.Worker{{ID: "w1", HomeAddress: "nowhere"}},
	}
	fellBack := g.ResolveSnapshot(context.Background(), &snap, 2)

	for i, j := range snap.Jobs {
		if j.Location == nil {
			t.Fatalf("job %d has no coordinates", i)
		}
	}
	if snap.Workers[0].Location == nil {
		t.Fatal("worker has no coordinates")
	}
	if !fellBack["b"] || fellBack["a"] || fellBack["c"] {
		t.Fatalf("fellBack = %v", fellBack)
	}
	if *snap.Jobs[0].Location != aalborg {
		t.Fatalf("job a resolved to %+v", *snap.Jobs[0].Location)
	}
}
