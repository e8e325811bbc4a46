// Package internaldefs holds the metric names, help strings and bucket
// boundaries shared by the exporters, so Prometheus and OpenTelemetry expose
// identical series.
package internaldefs
