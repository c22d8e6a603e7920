package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/canopy-network/smt/lib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveUpdate(true, time.Now())
		m.ObserveProof(1, 2)
		m.ObserveVerify(true, nil)
		m.ObserveStoreGet("memory")
		m.ObserveStorePut("memory", 3)
		m.ObserveCache(true)
	})
	require.Nil(t, m.Registry())
	require.Nil(t, NewServer(m, lib.MetricsConfig{MetricsEnabled: true}, lib.NewNullLogger()))
}

func TestObservations(t *testing.T) {
	m, other := New(), New() // private registries never collide
	m.ObserveUpdate(false, time.Now())
	m.ObserveUpdate(false, time.Now())
	m.ObserveUpdate(true, time.Now())
	m.ObserveVerify(true, nil)
	m.ObserveVerify(false, nil)
	m.ObserveVerify(false, errors.New("bad"))
	m.ObserveStorePut("badger", 5)
	m.ObserveCache(false)
	require.Equal(t, float64(2), testutil.ToFloat64(m.TreeMetrics.Updates))
	require.Equal(t, float64(1), testutil.ToFloat64(m.TreeMetrics.Deletes))
	require.Equal(t, float64(1), testutil.ToFloat64(m.ProofMetrics.Verifications.WithLabelValues(VerifyValid)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.ProofMetrics.Verifications.WithLabelValues(VerifyMismatch)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.ProofMetrics.Verifications.WithLabelValues(VerifyError)))
	require.Equal(t, float64(5), testutil.ToFloat64(m.StoreMetrics.Puts.WithLabelValues("badger")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.StoreMetrics.CacheMisses))
	require.Equal(t, float64(0), testutil.ToFloat64(other.TreeMetrics.Updates))
}

func TestMetricsHandler(t *testing.T) {
	m := New()
	m.ObserveProof(2, 3)
	srv := httptest.NewServer(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "smt_proofs_generated_total 1")
	// disabled config yields no server
	require.Nil(t, NewServer(m, lib.MetricsConfig{}, lib.NewNullLogger()))
	s := NewServer(m, lib.MetricsConfig{MetricsEnabled: true, PrometheusAddress: "127.0.0.1:0"}, lib.NewNullLogger())
	require.Equal(t, "127.0.0.1:0", s.Addr())
	require.NoError(t, s.Stop())
}
