// Package otel publishes engine metrics as OpenTelemetry observable
// instruments: one Int64ObservableCounter per counter and one
// Int64ObservableGauge per latency bucket.
//
// Callers own the MeterProvider and pass in a Meter.
package otel
