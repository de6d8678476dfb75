package memo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts node computations and cache hits. A nil *Metrics is valid
// and counts nothing, so instrumentation stays optional.
type Metrics struct {
	computations prometheus.Counter
	hits         prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		computations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tracelens_memo_computations_total",
			Help: "Number of derived-value recomputations.",
		}),
		hits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tracelens_memo_cache_hits_total",
			Help: "Number of derived-value requests served from cache.",
		}),
	}
}

func (m *Metrics) computed() {
	if m != nil {
		m.computations.Inc()
	}
}

func (m *Metrics) hit() {
	if m != nil {
		m.hits.Inc()
	}
}
