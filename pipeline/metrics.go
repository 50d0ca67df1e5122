package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dshills/devteam/team"
)

// Metrics exposes engine and ladder measurements to Prometheus. A nil
// *Metrics records nothing.
type Metrics struct {
	stepLatency *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	queueDepth  *prometheus.GaugeVec
	escalations prometheus.Counter
	awaiting    prometheus.Gauge
}

// NewMetrics registers the collectors with reg, or the default registerer
// when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "devteam",
			Name:      "step_latency_ms",
			Help:      "Node execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000},
		}, []string{"node_id", "status"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devteam",
			Name:      "runs_total",
			Help:      "Run and resume calls by outcome",
		}, []string{"status"}),
		queueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "devteam",
			Name:      "queue_depth",
			Help:      "Work items per queue after the latest step",
		}, []string{"queue"}),
		escalations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "devteam",
			Name:      "human_escalations_total",
			Help:      "Work items that reached human escalation",
		}),
		awaiting: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "devteam",
			Name:      "awaiting_human",
			Help:      "Work items suspended waiting for a human decision",
		}),
	}
}

func (m *Metrics) observeStep(nodeID, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepLatency.WithLabelValues(nodeID, status).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) observeState(s team.State) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues("work").Set(float64(len(s.WorkQueue)))
	m.queueDepth.WithLabelValues("evaluation").Set(float64(len(s.EvaluationQueue)))
	m.queueDepth.WithLabelValues("completed").Set(float64(len(s.CompletedWork)))
	m.queueDepth.WithLabelValues("failed").Set(float64(len(s.FailedWork)))
	m.awaiting.Set(float64(len(s.AwaitingHuman)))
}

func (m *Metrics) escalated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.escalations.Add(float64(n))
}

func (m *Metrics) finished(status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
}
