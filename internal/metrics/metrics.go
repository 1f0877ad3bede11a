// Package metrics exposes the optional Prometheus counters the
// resolver and transport record. A nil *Recorder is valid and
// discards every observation, so callers never need to guard against
// metrics being disabled.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "gitfetch"

// A Recorder holds the counters/histograms this module exports. The
// zero value is not usable; construct one with New or NewUnregistered.
// A nil *Recorder is valid and every method on it is a no-op, so
// components can accept a possibly-nil *Recorder without branching on
// whether metrics were configured.
type Recorder struct {
	objectsResolved *prometheus.CounterVec
	bytesFetched    prometheus.Counter
	packSize        prometheus.Histogram
}

// New creates a Recorder and registers its collectors with reg. If reg
// is nil, prometheus.DefaultRegisterer is used.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := NewUnregistered()
	reg.MustRegister(r.objectsResolved, r.bytesFetched, r.packSize)
	return r
}

// NewUnregistered creates a Recorder without registering it with any
// registry, for tests or callers that manage registration themselves.
func NewUnregistered() *Recorder {
	return &Recorder{
		objectsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_resolved_total",
			Help:      "Objects resolved by the object manager, by source (loose, pack, delta).",
		}, []string{"source"}),
		bytesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_fetched_total",
			Help:      "Packfile bytes received over git:// transport.",
		}),
		packSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pack_size_bytes",
			Help:      "Size in bytes of packfiles received from a fetch.",
			Buckets:   prometheus.ExponentialBuckets(1<<10, 4, 10),
		}),
	}
}

// ObjectResolved records one object having been resolved from the
// given source ("loose", "pack", or "delta").
func (r *Recorder) ObjectResolved(source string) {
	if r == nil {
		return
	}
	r.objectsResolved.WithLabelValues(source).Inc()
}

// BytesFetched adds n to the running total of packfile bytes received.
func (r *Recorder) BytesFetched(n int) {
	if r == nil {
		return
	}
	r.bytesFetched.Add(float64(n))
}

// PackReceived records the final size of a completed packfile fetch.
func (r *Recorder) PackReceived(size int64) {
	if r == nil {
		return
	}
	r.packSize.Observe(float64(size))
}
