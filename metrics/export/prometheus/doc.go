// Package prometheus renders engine counters and latency histograms in the
// Prometheus text format. Counters are named identity_*_total.
//
// Nothing is registered globally; callers mount Exporter.Handler.
package prometheus
