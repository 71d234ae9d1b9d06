package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder is the metrics port used by the resolver, the PDP client and the
// gateway.
type Recorder interface {
	RecordResolution(resolvedBy string)
	RecordDecision(effect string, source string)
	RecordFallback(reason string)
	RecordRateLimited(route string)
}

type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (Noop) RecordResolution(string)       {}
func (Noop) RecordDecision(string, string) {}
func (Noop) RecordFallback(string)         {}
func (Noop) RecordRateLimited(string)      {}

type Prometheus struct {
	resolutions *prometheus.CounterVec
	decisions   *prometheus.CounterVec
	fallbacks   *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
}

func NewPrometheus() *Prometheus {
	return NewPrometheusWithRegistry(prometheus.DefaultRegisterer)
}

// NewPrometheusWithRegistry registers the collectors on reg. Tests pass a
// fresh prometheus.NewRegistry().
func NewPrometheusWithRegistry(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cityos_context_resolutions_total",
			Help: "Request context resolutions by winning source",
		}, []string{"resolved_by"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cityos_pdp_decisions_total",
			Help: "Per-action authorization decisions by effect and source",
		}, []string{"effect", "source"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cityos_pdp_fallback_total",
			Help: "PDP calls answered by the fallback policy",
		}, []string{"reason"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cityos_rate_limited_total",
			Help: "Requests rejected by the per-tenant rate limiter",
		}, []string{"route"}),
	}
	reg.MustRegister(p.resolutions, p.decisions, p.fallbacks, p.rateLimited)
	return p
}

func (p *Prometheus) RecordResolution(resolvedBy string) {
	p.resolutions.WithLabelValues(resolvedBy).Inc()
}

func (p *Prometheus) RecordDecision(effect, source string) {
	p.decisions.WithLabelValues(effect, source).Inc()
}

func (p *Prometheus) RecordFallback(reason string) {
	p.fallbacks.WithLabelValues(reason).Inc()
}

func (p *Prometheus) RecordRateLimited(route string) {
	p.rateLimited.WithLabelValues(route).Inc()
}

var (
	_ Recorder = (*Noop)(nil)
	_ Recorder = (*Prometheus)(nil)
)
