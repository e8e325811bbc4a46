// Package anomaly holds the pure heuristics used to flag suspicious sessions:
// impossible travel between two geolocated sightings, fingerprint churn
// across a user's live sessions, rapid session creation, and concurrent
// session ceilings.
//
// Nothing here performs I/O. Callers gather sessions and counts and pass them in.
package anomaly
