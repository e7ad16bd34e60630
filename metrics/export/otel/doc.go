// Package otel publishes engine metrics through an OpenTelemetry Meter.
//
// Every counter becomes an Int64ObservableCounter. The latency histogram is
// exported as a cumulative bucket gauge with an "le" attribute plus a count
// gauge. One callback reads Engine.MetricsSnapshot per collection.
package otel
