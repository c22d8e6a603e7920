package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "smt"

// Metrics holds the telemetry of one tree process; a nil *Metrics disables every observation
type Metrics struct {
	registry *prometheus.Registry

	// TreeMetrics represents tree mutation metrics
	TreeMetrics struct {
		Updates    prometheus.Counter
		Deletes    prometheus.Counter
		UpdateTime prometheus.Histogram
	}

	// ProofMetrics represents proof generation and verification metrics
	ProofMetrics struct {
		Generated     prometheus.Counter
		Keys          prometheus.Histogram
		Siblings      prometheus.Histogram
		Verifications *prometheus.CounterVec
	}

	// StoreMetrics represents node store metrics
	StoreMetrics struct {
		Gets        *prometheus.CounterVec
		Puts        *prometheus.CounterVec
		CacheHits   prometheus.Counter
		CacheMisses prometheus.Counter
	}
}

// New() creates the metrics on a private registry so multiple trees can coexist in one process
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	f := promauto.With(m.registry)
	m.TreeMetrics.Updates = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tree_updates_total",
		Help:      "Number of key insertions or overwrites",
	})
	m.TreeMetrics.Deletes = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tree_deletes_total",
		Help:      "Number of updates that set a key to the zero value",
	})
	m.TreeMetrics.UpdateTime = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tree_update_seconds",
		Help:      "Time taken to apply one update in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
	})
	m.ProofMetrics.Generated = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "proofs_generated_total",
		Help:      "Number of proofs generated",
	})
	m.ProofMetrics.Keys = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "proof_keys",
		Help:      "Number of keys covered by a generated proof",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})
	m.ProofMetrics.Siblings = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "proof_siblings",
		Help:      "Number of sibling digests carried by a generated proof",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})
	m.ProofMetrics.Verifications = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "proof_verifications_total",
		Help:      "Proof verifications by result (valid, mismatch, error)",
	}, []string{"result"})
	m.StoreMetrics.Gets = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_gets_total",
		Help:      "Node reads by backend",
	}, []string{"backend"})
	m.StoreMetrics.Puts = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_puts_total",
		Help:      "Node writes by backend",
	}, []string{"backend"})
	m.StoreMetrics.CacheHits = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_cache_hits_total",
		Help:      "Node reads served by the cache",
	})
	m.StoreMetrics.CacheMisses = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_cache_misses_total",
		Help:      "Node reads that fell through the cache",
	})
	return m
}

// Registry() exposes the private registry for serving or gathering
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
