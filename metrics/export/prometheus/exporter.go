package prometheus

import (
	"net/http"

	"github.com/MrEthical07/sessionauth"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Source is what the exporters read. *sessionauth.Engine satisfies it.
type Source interface {
	MetricsSnapshot() sessionauth.MetricsSnapshot
	AuditDropped() uint64
}

// Handler serves the engine metrics alone from a private registry. Hosts
// that already run a registry should register a [Collector] instead.
func Handler(source Source, constLabels promclient.Labels) http.Handler {
	reg := promclient.NewRegistry()
	reg.MustRegister(NewCollector(source, constLabels))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
