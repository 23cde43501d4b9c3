// Package geo provides distance, travel-time, and geocoding support for
// the scheduling engine. Provider calls are rate-limited and cached here;
// from the engine's point of view every function is pure.
package geo

import (
	"math"

	"fieldsched/internal/model"
)

const earthRadiusM = 6371000.0

// HaversineM returns the great-circle distance between two points in meters.
func HaversineM(a, b model.GeoPoint) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusM * c
}

// HaversineKm returns the great-circle distance in kilometers.
func HaversineKm(a, b model.GeoPoint) float64 { return HaversineM(a, b) / 1000 }

// RoadFactorMinPerKm estimates driving minutes per kilometer for a trip
// of the given straight-line length. Short in-city hops crawl at about
// 3 min/km; past 100 km the trip is mostly highway at 1.1 min/km, with a
// linear blend in between. This keeps fallback estimates realistic
// without a live routing call.
func RoadFactorMinPerKm(distKm float64) float64 {
	switch {
	case distKm < 20:
		return 3.0
	case distKm < 100:
		return 2.0 - (distKm-20)/80*0.9
	default:
		return 1.1
	}
}

// FallbackEstimate computes a geometric travel estimate scaled by the
// road-type factor. It never fails.
func FallbackEstimate(from, to model.GeoPoint) TravelEstimate {
	km := HaversineKm(from, to)
	minutes := km * RoadFactorMinPerKm(km)
	return TravelEstimate{
		DistanceM:   int(math.Round(km * 1000)),
		DurationSec: int(math.Round(minutes * 60)),
	}
}
