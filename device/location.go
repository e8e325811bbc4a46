package device

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sort"
)

var (
	// ErrInvalidAddress is returned for strings that are not IP addresses.
	ErrInvalidAddress = errors.New("invalid ip address")
	// ErrLocationUnknown is returned by a Locator that has no entry for an address.
	ErrLocationUnknown = errors.New("location unknown")
	// ErrLocatorPanic wraps a panic recovered from a Locator.
	ErrLocatorPanic = errors.New("locator panicked")
)

// Location is a coarse geolocation. Coordinates are nil when unknown.
type Location struct {
	Country   string   `json:"country" bson:"country"`
	Region    string   `json:"region" bson:"region"`
	City      string   `json:"city" bson:"city"`
	Latitude  *float64 `json:"latitude,omitempty" bson:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty" bson:"longitude,omitempty"`
	Timezone  string   `json:"timezone" bson:"timezone"`
}

// UnknownLocation is the well-defined answer for unresolvable addresses.
func UnknownLocation() Location {
	return Location{Country: unknown, Region: unknown, City: unknown, Timezone: "UTC"}
}

// LocalLocation is returned for loopback and private addresses.
func LocalLocation() Location {
	return Location{Country: "Local", Region: "Local", City: "Local", Timezone: "UTC"}
}

// At returns a location with coordinates set.
func At(country, region, city string, lat, lon float64, tz string) Location {
	return Location{Country: country, Region: region, City: city, Latitude: &lat, Longitude: &lon, Timezone: tz}
}

// Coordinates returns the point and whether it is known.
func (l Location) Coordinates() (lat, lon float64, ok bool) {
	if l.Latitude == nil || l.Longitude == nil {
		return 0, 0, false
	}
	return *l.Latitude, *l.Longitude, true
}

// IsUnknown reports whether l carries no usable information.
func (l Location) IsUnknown() bool {
	_, _, ok := l.Coordinates()
	return !ok && (l.Country == "" || l.Country == unknown)
}

// Locator resolves an address to a location.
type Locator interface {
	Locate(ctx context.Context, ip string) (Location, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context, ip string) (Location, error)

// Locate calls f.
func (f LocatorFunc) Locate(ctx context.Context, ip string) (Location, error) {
	return f(ctx, ip)
}

// Resolve asks l for ip's location. The returned Location is always usable:
// on any failure it is UnknownLocation and the error is returned only so the
// caller can log it.
// A panicking Locator is reported as ErrLocatorPanic.
func Resolve(ctx context.Context, l Locator, ip string) (loc Location, err error) {
	if l == nil {
		return UnknownLocation(), nil
	}
	defer func() {
		if r := recover(); r != nil {
			loc, err = UnknownLocation(), fmt.Errorf("%w: %v", ErrLocatorPanic, r)
		}
	}()
	loc, err = l.Locate(ctx, ip)
	if err != nil {
		return UnknownLocation(), err
	}
	if loc.Country == "" && loc.City == "" {
		return UnknownLocation(), nil
	}
	return loc, nil
}

type prefixEntry struct {
	prefix netip.Prefix
	loc    Location
}

// StaticLocator maps CIDR prefixes to locations with longest-prefix match.
// Loopback, private and link-local addresses resolve to LocalLocation.
type StaticLocator struct {
	entries []prefixEntry
}

// NewStaticLocator parses a CIDR → location table.
func NewStaticLocator(table map[string]Location) (*StaticLocator, error) {
	s := &StaticLocator{entries: make([]prefixEntry, 0, len(table))}
	for cidr, loc := range table {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("static locator prefix %q: %w", cidr, err)
		}
		s.entries = append(s.entries, prefixEntry{prefix: p.Masked(), loc: loc})
	}
	sort.Slice(s.entries, func(i, j int) bool {
		return s.entries[i].prefix.Bits() > s.entries[j].prefix.Bits()
	})
	return s, nil
}

// Locate implements Locator.
func (s *StaticLocator) Locate(_ context.Context, ip string) (Location, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %q", ErrInvalidAddress, ip)
	}
	addr = addr.Unmap()
	for _, e := range s.entries {
		if e.prefix.Contains(addr) {
			return e.loc, nil
		}
	}
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() {
		return LocalLocation(), nil
	}
	return Location{}, ErrLocationUnknown
}
