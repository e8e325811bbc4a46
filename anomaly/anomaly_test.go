package anomaly

import (
	"math"
	"testing"
	"time"
)

var (
	london  = Point{Lat: 51.5074, Lon: -0.1278}
	paris   = Point{Lat: 48.8566, Lon: 2.3522}
	newYork = Point{Lat: 40.7128, Lon: -74.0060}
	losAng  = Point{Lat: 34.0522, Lon: -118.2437}
)

func TestHaversine(t *testing.T) {
	if d := Haversine(london, paris); math.Abs(d-343.5) > 5 {
		t.Fatalf("London-Paris = %.1f km", d)
	}
	if d := Haversine(newYork, losAng); math.Abs(d-3936) > 20 {
		t.Fatalf("NY-LA = %.1f km", d)
	}
	if d := Haversine(paris, paris); d != 0 {
		t.Fatalf("same point distance = %f", d)
	}
}

func TestImpossibleTravel(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	th := DefaultTravelThresholds()

	cases := []struct {
		name string
		a, b Sighting
		want bool
	}{
		{"3000+km in 10 minutes", Sighting{newYork, true, base}, Sighting{losAng, true, base.Add(10 * time.Minute)}, true},
		{"london-paris in 2 hours", Sighting{london, true, base}, Sighting{paris, true, base.Add(2 * time.Hour)}, false},
		{"london-paris in 15 minutes", Sighting{london, true, base}, Sighting{paris, true, base.Add(15 * time.Minute)}, true},
		{"ny-la in 5 hours", Sighting{newYork, true, base}, Sighting{losAng, true, base.Add(5 * time.Hour)}, false},
		{"unknown coordinates", Sighting{newYork, false, base}, Sighting{losAng, true, base.Add(time.Minute)}, false},
		{"same place same time", Sighting{paris, true, base}, Sighting{paris, true, base}, false},
		{"reversed order", Sighting{losAng, true, base.Add(10 * time.Minute)}, Sighting{newYork, true, base}, true},
	}
	for _, tc := range cases {
		got := ImpossibleTravel(tc.a, tc.b, th)
		if got.Suspicious != tc.want {
			t.Fatalf("%s: got %+v", tc.name, got)
		}
	}
}

func TestImpossibleTravelSimultaneousIsInfiniteSpeed(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	v := ImpossibleTravel(Sighting{london, true, at}, Sighting{paris, true, at}, DefaultTravelThresholds())
	if !v.Suspicious || !math.IsInf(v.SpeedKmh, 1) || v.Reason != "speed" {
		t.Fatalf("unexpected verdict %+v", v)
	}
}

func TestImpossibleTravelDistanceRule(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	th := TravelThresholds{MaxSpeedKmh: 100000, MaxDistanceKm: 1000, MinElapsedForFar: time.Hour}
	v := ImpossibleTravel(Sighting{newYork, true, at}, Sighting{losAng, true, at.Add(50 * time.Minute)}, th)
	if !v.Suspicious || v.Reason != "distance" {
		t.Fatalf("expected distance rule, got %+v", v)
	}
}

func TestFingerprintChurn(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	old := now.Add(-time.Hour)
	th := DefaultChurnThresholds()

	v := FingerprintChurn([]SessionSample{
		{"a", old, true}, {"b", old, true}, {"a", old, true},
	}, now, th)
	if v.Suspicious() || v.DistinctFingerprints != 2 {
		t.Fatalf("two devices should be fine: %+v", v)
	}

	v = FingerprintChurn([]SessionSample{
		{"a", old, true}, {"b", old, true}, {"c", old, true}, {"d", old, false},
	}, now, th)
	if !v.TooManyDevices || v.DistinctFingerprints != 3 {
		t.Fatalf("three active devices should flag: %+v", v)
	}

	recent := now.Add(-time.Minute)
	v = FingerprintChurn([]SessionSample{
		{"a", recent, true}, {"a", recent, true}, {"a", recent, false}, {"a", now, true},
	}, now, th)
	if !v.RapidCreation || v.RecentSessions != 4 || v.TooManyDevices {
		t.Fatalf("four sessions in five minutes should flag: %+v", v)
	}

	v = FingerprintChurn([]SessionSample{
		{"a", recent, true}, {"a", recent, true}, {"a", now, true},
	}, now, th)
	if v.RapidCreation {
		t.Fatalf("three sessions in five minutes is allowed: %+v", v)
	}
}

func TestCheckLimits(t *testing.T) {
	l := Limits{MaxActivePerUser: 3, MaxActivePerIP: 10}
	if v := CheckLimits(Counts{ActiveForUser: 2, TotalForUser: 500, ActiveForIP: 9}, l); v != nil {
		t.Fatalf("under limits: %v", v)
	}
	v := CheckLimits(Counts{ActiveForUser: 3}, l)
	if v == nil || v.Kind != LimitActivePerUser || v.Limit != 3 {
		t.Fatalf("expected per-user violation, got %v", v)
	}
	v = CheckLimits(Counts{ActiveForIP: 10}, l)
	if v == nil || v.Kind != LimitActivePerIP {
		t.Fatalf("expected per-ip violation, got %v", v)
	}
	if CheckLimits(Counts{ActiveForUser: 1 << 20}, Limits{}) != nil || !(Limits{}).Unlimited() {
		t.Fatal("zero limits are unlimited")
	}
}
