// Package otel mirrors sessionauth engine metrics into OpenTelemetry.
//
// [NewExporter] registers observable instruments on a caller-supplied
// Meter and reads [sessionauth.Engine.MetricsSnapshot] from a single
// callback on each collection. The caller owns the MeterProvider.
package otel
