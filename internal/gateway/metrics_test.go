package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue sums the samples of the named counter whose labels include
// every pair in labels.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64

	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}

		for _, m := range fam.GetMetric() {
			if matchLabels(m, labels) {
				total += m.GetCounter().GetValue()
			}
		}
	}

	return total
}

func matchLabels(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}

	for k, v := range want {
		if got[k] != v {
			return false
		}
	}

	return true
}

func TestMetrics_CountsRequestsAndRefreshes(t *testing.T) {
	rs, srv := newRefreshServer(t, "acc-2")
	rs.exchange = grantPair("acc-2", "ref-2")

	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	c := NewClient(srv.URL, newTestStore(t, "acc-1", "ref-1"), Options{Metrics: m})
	require.NoError(t, c.Call(t.Context(), http.MethodGet, "/datos", nil, nil))

	assert.InDelta(t, 1, counterValue(t, reg, "despacho_gateway_requests_total",
		map[string]string{"method": "GET", "status": "401"}), 0)
	assert.InDelta(t, 1, counterValue(t, reg, "despacho_gateway_requests_total",
		map[string]string{"method": "GET", "status": "200"}), 0)
	assert.InDelta(t, 1, counterValue(t, reg, "despacho_gateway_requests_total",
		map[string]string{"method": "POST", "status": "200"}), 0)
	assert.InDelta(t, 1, counterValue(t, reg, "despacho_gateway_refresh_total",
		map[string]string{"outcome": "exchanged"}), 0)
}

func TestMetrics_TransportErrorLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	c := NewClient(url, newTestStore(t, "a", "r"), Options{Metrics: m})
	require.Error(t, c.Call(t.Context(), http.MethodGet, "/roles", nil, nil))

	assert.InDelta(t, 1, counterValue(t, reg, "despacho_gateway_requests_total",
		map[string]string{"method": "GET", "status": "error"}), 0)
}

func TestNewMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first, err := NewMetrics(reg)
	require.NoError(t, err)

	second, err := NewMetrics(reg)
	require.NoError(t, err)

	assert.Same(t, first.requests, second.requests)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.observeRequest("GET", "200", 0)
		m.observeRefresh(outcomeFailed)
	})
}
