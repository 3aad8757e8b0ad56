package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MetaverseMetrics tracks the ledger core's operational counters.
type MetaverseMetrics struct {
	typesAllocated    *prometheus.CounterVec
	tokensMinted      *prometheus.CounterVec
	tokensBurned      prometheus.Counter
	permissionDenials prometheus.Counter
	delegations       *prometheus.CounterVec
}

var (
	metaverseOnce     sync.Once
	metaverseRegistry *MetaverseMetrics
)

func Metaverse() *MetaverseMetrics {
	metaverseOnce.Do(func() {
		metaverseRegistry = &MetaverseMetrics{
			typesAllocated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "metaverse_types_allocated_total",
				Help: "Count of allocated token types by kind.",
			}, []string{"kind"}),
			tokensMinted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "metaverse_tokens_minted_total",
				Help: "Count of mint operations by token kind.",
			}, []string{"kind"}),
			tokensBurned: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "metaverse_tokens_burned_total",
				Help: "Count of burn operations.",
			}),
			permissionDenials: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "metaverse_permission_denials_total",
				Help: "Count of operations rejected by the permission engine.",
			}),
			delegations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "metaverse_delegations_total",
				Help: "Count of delegation checks by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			metaverseRegistry.typesAllocated,
			metaverseRegistry.tokensMinted,
			metaverseRegistry.tokensBurned,
			metaverseRegistry.permissionDenials,
			metaverseRegistry.delegations,
		)
	})
	return metaverseRegistry
}

func (m *MetaverseMetrics) ObserveTypeAllocated(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.typesAllocated.WithLabelValues(kind).Inc()
}

func (m *MetaverseMetrics) ObserveMint(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.tokensMinted.WithLabelValues(kind).Inc()
}

func (m *MetaverseMetrics) ObserveBurn() {
	if m == nil {
		return
	}
	m.tokensBurned.Inc()
}

func (m *MetaverseMetrics) ObservePermissionDenied() {
	if m == nil {
		return
	}
	m.permissionDenials.Inc()
}

func (m *MetaverseMetrics) ObserveDelegation(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.delegations.WithLabelValues(outcome).Inc()
}
