package anomaly

import (
	"math"
	"time"
)

// EarthRadiusKm is the mean earth radius used by Haversine.
const EarthRadiusKm = 6371.0

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Sighting is a point in time and, when known, space.
type Sighting struct {
	Point Point
	Known bool
	At    time.Time
}

// TravelThresholds bound plausible movement between two sightings.
type TravelThresholds struct {
	MaxSpeedKmh      float64
	MaxDistanceKm    float64
	MinElapsedForFar time.Duration
}

// DefaultTravelThresholds returns 1000 km/h, or 1000 km within an hour.
func DefaultTravelThresholds() TravelThresholds {
	return TravelThresholds{MaxSpeedKmh: 1000, MaxDistanceKm: 1000, MinElapsedForFar: time.Hour}
}

// TravelVerdict is the outcome of ImpossibleTravel.
type TravelVerdict struct {
	Suspicious bool
	DistanceKm float64
	Elapsed    time.Duration
	// SpeedKmh is +Inf when the sightings are simultaneous but apart.
	SpeedKmh float64
	Reason   string
}

// Haversine returns the great-circle distance between a and b in kilometres.
func Haversine(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// ImpossibleTravel flags a pair of sightings whose implied speed exceeds
// MaxSpeedKmh, or that are more than MaxDistanceKm apart within
// MinElapsedForFar. Sightings without coordinates are never suspicious.
func ImpossibleTravel(a, b Sighting, th TravelThresholds) TravelVerdict {
	if !a.Known || !b.Known {
		return TravelVerdict{}
	}
	if th.MaxSpeedKmh <= 0 {
		th.MaxSpeedKmh = 1000
	}
	if th.MaxDistanceKm <= 0 {
		th.MaxDistanceKm = 1000
	}
	if th.MinElapsedForFar <= 0 {
		th.MinElapsedForFar = time.Hour
	}

	v := TravelVerdict{DistanceKm: Haversine(a.Point, b.Point)}
	v.Elapsed = b.At.Sub(a.At)
	if v.Elapsed < 0 {
		v.Elapsed = -v.Elapsed
	}

	switch {
	case v.Elapsed == 0 && v.DistanceKm > 0:
		v.SpeedKmh = math.Inf(1)
	case v.Elapsed > 0:
		v.SpeedKmh = v.DistanceKm / v.Elapsed.Hours()
	}

	switch {
	case v.SpeedKmh > th.MaxSpeedKmh:
		v.Suspicious = true
		v.Reason = "speed"
	case v.DistanceKm > th.MaxDistanceKm && v.Elapsed < th.MinElapsedForFar:
		v.Suspicious = true
		v.Reason = "distance"
	}
	return v
}
