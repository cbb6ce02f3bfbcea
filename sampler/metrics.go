package sampler

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Metrics exports engine progress to prometheus
type Metrics struct {
	Iterations    *prometheus.CounterVec
	Proposals     *prometheus.CounterVec
	Failures      prometheus.Counter
	RunSeconds    prometheus.Histogram
	ChainsRunning prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg (skipped
// when reg is nil).
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bayesgraph",
			Name:      "iterations_total",
			Help:      "Completed MCMC iterations by chain.",
		}, []string{"chain"}),
		Proposals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bayesgraph",
			Name:      "proposals_total",
			Help:      "Procedure updates by procedure and result (accepted or rejected).",
		}, []string{"procedure", "result"}),
		Failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bayesgraph",
			Name:      "chain_failures_total",
			Help:      "Chains aborted by a sampling failure.",
		}),
		RunSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bayesgraph",
			Name:      "run_duration_seconds",
			Help:      "Wall time of Engine.Run.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		ChainsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bayesgraph",
			Name:      "chains_running",
			Help:      "Chains currently sampling.",
		}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Iterations, m.Proposals, m.Failures, m.RunSeconds, m.ChainsRunning} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "Could not register sampler metrics")
		}
	}
	return m, nil
}

// AcceptanceRate is accepted over all proposals for a procedure, or 0
// before any proposal.
func (m *Metrics) AcceptanceRate(procedure string) float64 {
	acc := counterValue(m.Proposals.WithLabelValues(procedure, "accepted"))
	rej := counterValue(m.Proposals.WithLabelValues(procedure, "rejected"))
	if acc+rej == 0 {
		return 0
	}
	return acc / (acc + rej)
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
