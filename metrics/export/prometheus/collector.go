package prometheus

import (
	"github.com/MrEthical07/sessionauth/metrics/export/internaldefs"
	promclient "github.com/prometheus/client_golang/prometheus"
)

// Collector exposes engine metrics as a client_golang collector so they
// can share a registry, and a promhttp handler, with the host's own
// metrics. Values are read from the engine snapshot on every scrape.
type Collector struct {
	source       Source
	counters     []*promclient.Desc
	histograms   []*promclient.Desc
	auditDropped *promclient.Desc
}

var _ promclient.Collector = (*Collector)(nil)

// NewCollector builds a collector over source. constLabels are attached
// to every series, e.g. {"service": "authd"}.
func NewCollector(source Source, constLabels promclient.Labels) *Collector {
	c := &Collector{
		source:       source,
		counters:     make([]*promclient.Desc, len(internaldefs.CounterDefs)),
		histograms:   make([]*promclient.Desc, len(internaldefs.HistogramDefs)),
		auditDropped: promclient.NewDesc(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, nil, constLabels),
	}
	for i, def := range internaldefs.CounterDefs {
		c.counters[i] = promclient.NewDesc(def.Name, def.Help, nil, constLabels)
	}
	for i, def := range internaldefs.HistogramDefs {
		c.histograms[i] = promclient.NewDesc(def.Name, def.Help, nil, constLabels)
	}
	return c
}

func (c *Collector) Describe(ch chan<- *promclient.Desc) {
	for _, d := range c.counters {
		ch <- d
	}
	for _, d := range c.histograms {
		ch <- d
	}
	ch <- c.auditDropped
}

func (c *Collector) Collect(ch chan<- promclient.Metric) {
	if c.source == nil {
		return
	}
	snapshot := c.source.MetricsSnapshot()

	for i, def := range internaldefs.CounterDefs {
		ch <- promclient.MustNewConstMetric(c.counters[i], promclient.CounterValue, float64(snapshot.Counters[def.ID]))
	}

	for i, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(raw)
		buckets := make(map[float64]uint64, len(cumulative)-1)
		for j := 0; j < len(cumulative)-1; j++ {
			buckets[internaldefs.HistogramBounds[j]] = cumulative[j]
		}
		sum := snapshot.HistogramSums[def.ID].Seconds()
		ch <- promclient.MustNewConstHistogram(c.histograms[i], cumulative[len(cumulative)-1], sum, buckets)
	}

	ch <- promclient.MustNewConstMetric(c.auditDropped, promclient.CounterValue, float64(c.source.AuditDropped()))
}
