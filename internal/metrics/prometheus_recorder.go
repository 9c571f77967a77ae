package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	stepDuration    *prom.HistogramVec
	jobDuration     *prom.HistogramVec
	runDuration     prom.Histogram
	stepOutcomes    *prom.CounterVec
	jobOutcomes     *prom.CounterVec
	runOutcomes     *prom.CounterVec
	deploys         *prom.CounterVec
	previewPublishs *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stepDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "docspipe",
			Name:      "step_duration_seconds",
			Help:      "Duration of individual pipeline steps",
			Buckets:   prom.DefBuckets,
		}, []string{"job", "step"})
		pr.jobDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "docspipe",
			Name:      "job_duration_seconds",
			Help:      "Duration of pipeline jobs",
			Buckets:   prom.DefBuckets,
		}, []string{"job"})
		pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "docspipe",
			Name:      "run_duration_seconds",
			Help:      "Total pipeline run duration",
			Buckets:   prom.DefBuckets,
		})
		pr.stepOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docspipe",
			Name:      "step_outcomes_total",
			Help:      "Step results by outcome",
		}, []string{"job", "outcome"})
		pr.jobOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docspipe",
			Name:      "job_outcomes_total",
			Help:      "Job results by outcome",
		}, []string{"job", "outcome"})
		pr.runOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docspipe",
			Name:      "run_outcomes_total",
			Help:      "Run results by final outcome",
		}, []string{"outcome"})
		pr.deploys = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docspipe",
			Name:      "deploys_total",
			Help:      "Hosting branch deploys by result",
		}, []string{"result"})
		pr.previewPublishs = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docspipe",
			Name:      "preview_publishes_total",
			Help:      "Preview bucket publishes by result",
		}, []string{"result"})
		reg.MustRegister(pr.stepDuration, pr.jobDuration, pr.runDuration,
			pr.stepOutcomes, pr.jobOutcomes, pr.runOutcomes, pr.deploys, pr.previewPublishs)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStepDuration(job, step string, d time.Duration) {
	if p == nil || p.stepDuration == nil {
		return
	}
	p.stepDuration.WithLabelValues(job, step).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveJobDuration(job string, d time.Duration) {
	if p == nil || p.jobDuration == nil {
		return
	}
	p.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStepOutcome(job string, outcome OutcomeLabel) {
	if p == nil || p.stepOutcomes == nil {
		return
	}
	p.stepOutcomes.WithLabelValues(job, string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncJobOutcome(job string, outcome OutcomeLabel) {
	if p == nil || p.jobOutcomes == nil {
		return
	}
	p.jobOutcomes.WithLabelValues(job, string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncRunOutcome(outcome OutcomeLabel) {
	if p == nil || p.runOutcomes == nil {
		return
	}
	p.runOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncDeploy(success bool) {
	if p == nil || p.deploys == nil {
		return
	}
	p.deploys.WithLabelValues(resultLabel(success)).Inc()
}

func (p *PrometheusRecorder) IncPreviewPublish(success bool) {
	if p == nil || p.previewPublishs == nil {
		return
	}
	p.previewPublishs.WithLabelValues(resultLabel(success)).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}
