// Package prometheus publishes sessionauth engine metrics to Prometheus.
//
// [Collector] implements the client_golang Collector interface for hosts
// that already run a registry and promhttp. [Handler] wraps a Collector in
// a private registry for hosts that do not.
package prometheus
