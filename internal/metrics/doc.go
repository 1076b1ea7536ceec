// Package metrics provides lock-free counters and latency histograms for the
// identity engine.
//
// Counters are cache-line padded uint64 slots updated with sync/atomic.
// Histograms use 8 fixed buckets (<=5ms ... +Inf). The write path does not
// allocate. Export (Prometheus text, OpenTelemetry) lives in metrics/export
// and reads [Snapshot] values.
package metrics
