package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/sessionauth"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	snapshot sessionauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() sessionauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                         { return f.dropped }

func sampleSource() fakeSource {
	return fakeSource{
		snapshot: sessionauth.MetricsSnapshot{
			Counters: map[sessionauth.MetricID]uint64{
				sessionauth.MetricLoginSuccess:     7,
				sessionauth.MetricRefreshRevoked:   2,
				sessionauth.MetricStoreUnavailable: 1,
			},
			Histograms: map[sessionauth.MetricID][]uint64{
				sessionauth.MetricAuthenticateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
			HistogramSums: map[sessionauth.MetricID]time.Duration{
				sessionauth.MetricAuthenticateLatency: 1500 * time.Millisecond,
			},
		},
		dropped: 2,
	}
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	return rec.Body.String()
}

func TestHandlerServesEngineSeriesOnly(t *testing.T) {
	out := scrape(t, Handler(sampleSource(), promclient.Labels{"service": "authd"}))

	assert.Contains(t, out, `sessionauth_login_success_total{service="authd"} 7`)
	assert.Contains(t, out, `sessionauth_refresh_revoked_total{service="authd"} 2`)
	assert.Contains(t, out, `sessionauth_logout_total{service="authd"} 0`)
	assert.Contains(t, out, `sessionauth_authenticate_latency_seconds_bucket{service="authd",le="0.005"} 1`)
	assert.Contains(t, out, `sessionauth_authenticate_latency_seconds_bucket{service="authd",le="+Inf"} 36`)
	assert.Contains(t, out, `sessionauth_authenticate_latency_seconds_sum{service="authd"} 1.5`)
	assert.Contains(t, out, `sessionauth_authenticate_latency_seconds_count{service="authd"} 36`)
	assert.Contains(t, out, `sessionauth_audit_dropped_total{service="authd"} 2`)
	assert.NotContains(t, out, "sessionauth_login_latency_seconds", "histograms absent from the snapshot are skipped")
	assert.NotContains(t, out, "go_goroutines", "the private registry holds engine series only")
}

func TestHandlerWithLatencyDisabled(t *testing.T) {
	out := scrape(t, Handler(fakeSource{
		snapshot: sessionauth.MetricsSnapshot{
			Counters:      map[sessionauth.MetricID]uint64{},
			Histograms:    map[sessionauth.MetricID][]uint64{},
			HistogramSums: map[sessionauth.MetricID]time.Duration{},
		},
	}, nil))

	assert.Contains(t, out, "sessionauth_login_success_total 0")
	assert.NotContains(t, out, "_latency_seconds")
}

func TestCollectorRegistersAndGathers(t *testing.T) {
	reg := promclient.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(sampleSource(), promclient.Labels{"service": "authd"})))

	expected := `
# HELP sessionauth_login_success_total Successful logins.
# TYPE sessionauth_login_success_total counter
sessionauth_login_success_total{service="authd"} 7
# HELP sessionauth_audit_dropped_total Audit events dropped because the dispatcher buffer was full.
# TYPE sessionauth_audit_dropped_total counter
sessionauth_audit_dropped_total{service="authd"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"sessionauth_login_success_total", "sessionauth_audit_dropped_total"))

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "sessionauth_authenticate_latency_seconds" {
			continue
		}
		h := mf.GetMetric()[0].GetHistogram()
		assert.Equal(t, uint64(36), h.GetSampleCount())
		assert.InDelta(t, 1.5, h.GetSampleSum(), 1e-9)
		assert.GreaterOrEqual(t, len(h.GetBucket()), 7)
		return
	}
	t.Fatal("latency histogram not gathered")
}
