// Package metrics exposes pipeline metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KaramelBytes/dqlens-cli/internal/compliance"
	"github.com/KaramelBytes/dqlens-cli/internal/engine"
	"github.com/KaramelBytes/dqlens-cli/internal/rules"
)

const namespace = "dqlens"

// Collector records pipeline activity. It satisfies workspace.Observer.
type Collector struct {
	registry *prometheus.Registry

	runs            *prometheus.CounterVec
	issues          *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	datasetQuality  prometheus.Gauge
	complianceScore prometheus.Gauge
}

// NewCollector registers the metrics on registry; a nil registry gets a
// fresh one.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	c := &Collector{
		registry: registry,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline stage executions.",
		}, []string{"stage"}),
		issues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_total",
			Help:      "Rule violations found, by severity.",
		}, []string{"severity"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Pipeline stage duration.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8), // 0.5ms to ~8s
		}, []string{"stage"}),
		datasetQuality: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_quality",
			Help:      "Latest weighted dataset quality score.",
		}),
		complianceScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "compliance_score",
			Help:      "Latest mean policy compliance score.",
		}),
	}
	registry.MustRegister(c.runs, c.issues, c.duration, c.datasetQuality, c.complianceScore)
	// severities show up as zero before the first run
	c.issues.WithLabelValues(string(rules.SeverityWarning))
	c.issues.WithLabelValues(string(rules.SeverityError))
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) ObserveStage(stage string, d time.Duration) {
	c.runs.WithLabelValues(stage).Inc()
	c.duration.WithLabelValues(stage).Observe(d.Seconds())
}

func (c *Collector) ObserveChecks(res *engine.Result) {
	if res == nil {
		return
	}
	for sev, n := range res.IssueCounts() {
		c.issues.WithLabelValues(string(sev)).Add(float64(n))
	}
	if res.DatasetScore != nil {
		c.datasetQuality.Set(*res.DatasetScore)
	}
}

func (c *Collector) ObserveCompliance(rep *compliance.Report) {
	if rep != nil && rep.Score != nil {
		c.complianceScore.Set(*rep.Score)
	}
}
