package lib

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.Start()
		m.ObserveUpdate(3, time.Millisecond)
		m.ObserveGet()
		m.ObserveProof(10, time.Millisecond)
		m.ObserveVerify(true, nil)
		m.ObserveCommit(1, time.Millisecond)
		m.ObserveCommitRetry()
		m.Stop()
	})
	require.Nil(t, m.Registry())
}

func TestMetricsObserve(t *testing.T) {
	m := NewMetricsServer(DefaultMetricsConfig(), nil)
	m.ObserveUpdate(256, time.Microsecond)
	m.ObserveUpdate(256, time.Microsecond)
	m.ObserveVerify(true, nil)
	m.ObserveVerify(false, nil)
	m.ObserveVerify(false, errors.New("malformed"))
	m.ObserveCommit(7, time.Millisecond)
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	got := make(map[string]float64)
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				got[f.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				got[f.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}
	require.Equal(t, float64(2), got["vsmt_tree_updates_total"])
	require.Equal(t, float64(512), got["vsmt_tree_nodes_written_total"])
	require.Equal(t, float64(3), got["vsmt_proof_verifications_total"])
	require.Equal(t, float64(7), got["vsmt_store_committed_version"])
	// two metric sets never collide since each has a private registry
	require.NotPanics(t, func() { NewMetricsServer(DefaultMetricsConfig(), nil) })
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetricsServer(DefaultMetricsConfig(), nil)
	m.ObserveGet()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, metricsPattern, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "vsmt_tree_gets_total 1"))
}
