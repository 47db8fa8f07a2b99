package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// CoreMetrics groups the collectors shared by the read adapter, the risk
// engine and the order store.
type CoreMetrics struct {
	cacheLookups      *prometheus.CounterVec
	multicallFailures *prometheus.CounterVec
	riskAnalyses      *prometheus.CounterVec
	degradedAnalyses  prometheus.Counter
	orderTransitions  *prometheus.CounterVec
	rateLimited       *prometheus.CounterVec
}

var (
	coreOnce     sync.Once
	coreRegistry *CoreMetrics
)

// Core returns the lazily registered collectors.
func Core() *CoreMetrics {
	coreOnce.Do(func() {
		coreRegistry = &CoreMetrics{
			cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "slipguard_cache_lookups_total",
				Help: "Read adapter cache lookups by cache and result.",
			}, []string{"cache", "result"}),
			multicallFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "slipguard_multicall_failures_total",
				Help: "Multicall elements or batches that failed and were omitted.",
			}, []string{"method", "scope"}),
			riskAnalyses: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "slipguard_risk_analyses_total",
				Help: "Slippage analyses produced by risk level.",
			}, []string{"level"}),
			degradedAnalyses: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "slipguard_risk_degraded_total",
				Help: "Slippage analyses that fell back to the degraded result.",
			}),
			orderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "slipguard_order_transitions_total",
				Help: "Limit order status transitions by target status.",
			}, []string{"status"}),
			rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "slipguard_rate_limited_total",
				Help: "Requests rejected by the sliding window limiter.",
			}, []string{"scope"}),
		}
		prometheus.MustRegister(
			coreRegistry.cacheLookups,
			coreRegistry.multicallFailures,
			coreRegistry.riskAnalyses,
			coreRegistry.degradedAnalyses,
			coreRegistry.orderTransitions,
			coreRegistry.rateLimited,
		)
	})
	return coreRegistry
}

func (m *CoreMetrics) ObserveCacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

func (m *CoreMetrics) ObserveMulticallFailure(method, scope string) {
	if m == nil {
		return
	}
	m.multicallFailures.WithLabelValues(method, scope).Inc()
}

func (m *CoreMetrics) ObserveRiskAnalysis(level string, degraded bool) {
	if m == nil {
		return
	}
	if level == "" {
		level = "unknown"
	}
	m.riskAnalyses.WithLabelValues(level).Inc()
	if degraded {
		m.degradedAnalyses.Inc()
	}
}

func (m *CoreMetrics) ObserveOrderTransition(status string) {
	if m == nil {
		return
	}
	m.orderTransitions.WithLabelValues(status).Inc()
}

func (m *CoreMetrics) ObserveRateLimited(scope string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(scope).Inc()
}
