package otel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/sessionauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	counters map[sessionauth.MetricID]uint64
	latency  []uint64
	sum      time.Duration
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() sessionauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := sessionauth.MetricsSnapshot{
		Counters:      make(map[sessionauth.MetricID]uint64, len(f.counters)),
		Histograms:    map[sessionauth.MetricID][]uint64{},
		HistogramSums: map[sessionauth.MetricID]time.Duration{},
	}
	for k, v := range f.counters {
		out.Counters[k] = v
	}
	if f.latency != nil {
		out.Histograms[sessionauth.MetricAuthenticateLatency] = append([]uint64(nil), f.latency...)
		out.HistogramSums[sessionauth.MetricAuthenticateLatency] = f.sum
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReaderMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]float64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]float64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = float64(dp.Value)
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = float64(dp.Value)
				}
			case metricdata.Gauge[float64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			}
		}
	}
	return out
}

func TestExporterObservesSnapshot(t *testing.T) {
	reader, provider := newReaderMeter()
	src := &fakeSource{
		counters: map[sessionauth.MetricID]uint64{sessionauth.MetricLoginSuccess: 3},
		latency:  []uint64{1, 1, 1, 1, 1, 1, 1, 1},
		sum:      250 * time.Millisecond,
		dropped:  1,
	}

	exp, err := NewExporter(provider.Meter("sessionauth-test"), src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	got := collect(t, reader)
	assert.Equal(t, 3.0, got["sessionauth_login_success_total"])
	assert.Equal(t, 0.0, got["sessionauth_logout_total"])
	assert.Equal(t, 1.0, got["sessionauth_audit_dropped_total"])
	assert.Equal(t, 1.0, got["sessionauth_authenticate_latency_seconds_bucket_le_0_005"])
	assert.Equal(t, 8.0, got["sessionauth_authenticate_latency_seconds_bucket_le_inf"])
	assert.Equal(t, 8.0, got["sessionauth_authenticate_latency_seconds_count"])
	assert.InDelta(t, 0.25, got["sessionauth_authenticate_latency_seconds_sum"], 1e-9)
	_, hasLogin := got["sessionauth_login_latency_seconds_count"]
	assert.False(t, hasLogin, "histograms missing from the snapshot are not observed")
}

func TestExporterRejectsNilArguments(t *testing.T) {
	_, provider := newReaderMeter()

	_, err := NewExporter(provider.Meter("sessionauth-test"), nil)
	assert.ErrorIs(t, err, ErrNilSource)

	_, err = NewExporter(nil, &fakeSource{})
	assert.ErrorIs(t, err, ErrNilMeter)
}

func TestExporterCloseIsNilSafe(t *testing.T) {
	_, provider := newReaderMeter()
	src := &fakeSource{counters: map[sessionauth.MetricID]uint64{}}

	exp, err := NewExporter(provider.Meter("sessionauth-test"), src)
	require.NoError(t, err)
	assert.NoError(t, exp.Close())

	var nilExp *Exporter
	assert.NoError(t, nilExp.Close())
}

func TestExporterConcurrentCollect(t *testing.T) {
	reader, provider := newReaderMeter()
	src := &fakeSource{
		counters: map[sessionauth.MetricID]uint64{sessionauth.MetricLoginSuccess: 1},
		latency:  []uint64{1, 0, 0, 0, 0, 0, 0, 0},
	}

	exp, err := NewExporter(provider.Meter("sessionauth-test"), src)
	require.NoError(t, err)
	defer func() { _ = exp.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.counters[sessionauth.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
