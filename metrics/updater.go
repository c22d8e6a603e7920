package metrics

import (
	"time"
)

const (
	VerifyValid    = "valid"
	VerifyMismatch = "mismatch"
	VerifyError    = "error"
)

// ObserveUpdate() records one tree update and its duration
func (m *Metrics) ObserveUpdate(deleted bool, start time.Time) {
	if m == nil {
		return
	}
	if deleted {
		m.TreeMetrics.Deletes.Inc()
	} else {
		m.TreeMetrics.Updates.Inc()
	}
	m.TreeMetrics.UpdateTime.Observe(time.Since(start).Seconds())
}

// ObserveProof() records the shape of a generated proof
func (m *Metrics) ObserveProof(keys, siblings int) {
	if m == nil {
		return
	}
	m.ProofMetrics.Generated.Inc()
	m.ProofMetrics.Keys.Observe(float64(keys))
	m.ProofMetrics.Siblings.Observe(float64(siblings))
}

// ObserveVerify() records a verification outcome
func (m *Metrics) ObserveVerify(valid bool, err error) {
	if m == nil {
		return
	}
	switch {
	case err != nil:
		m.ProofMetrics.Verifications.WithLabelValues(VerifyError).Inc()
	case valid:
		m.ProofMetrics.Verifications.WithLabelValues(VerifyValid).Inc()
	default:
		m.ProofMetrics.Verifications.WithLabelValues(VerifyMismatch).Inc()
	}
}

// ObserveStoreGet() records a node read
func (m *Metrics) ObserveStoreGet(backend string) {
	if m == nil {
		return
	}
	m.StoreMetrics.Gets.WithLabelValues(backend).Inc()
}

// ObserveStorePut() records node writes
func (m *Metrics) ObserveStorePut(backend string, count int) {
	if m == nil {
		return
	}
	m.StoreMetrics.Puts.WithLabelValues(backend).Add(float64(count))
}

// ObserveCache() records a cache lookup
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.StoreMetrics.CacheHits.Inc()
	} else {
		m.StoreMetrics.CacheMisses.Inc()
	}
}
