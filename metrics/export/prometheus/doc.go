// Package prometheus renders edgeauth engine counters in Prometheus text
// exposition format.
//
// Counters are named edgeauth_*_total. The one histogram is
// edgeauth_validate_latency_seconds. Nothing is registered globally; the
// authority mounts [Exporter.Handler] at GET /metrics.
package prometheus
