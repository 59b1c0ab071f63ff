package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters for the schedule/queue pipeline. All
// observe methods are nil-safe so workers can run without metrics wired.
type PipelineMetrics struct {
	enqueuedTotal   *prometheus.CounterVec
	dispatchedTotal *prometheus.CounterVec
	channelTotal    *prometheus.CounterVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		enqueuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Subsystem: "pipeline",
			Name:      "enqueued_total",
			Help:      "Schedules promoted into queue rows",
		}, []string{"job_type", "status"}),
		dispatchedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Subsystem: "pipeline",
			Name:      "dispatched_total",
			Help:      "Queue rows processed by the dispatcher",
		}, []string{"job_type", "status"}),
		channelTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Subsystem: "pipeline",
			Name:      "channel_sends_total",
			Help:      "Per-channel send attempts",
		}, []string{"channel", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.enqueuedTotal, m.dispatchedTotal, m.channelTotal)
	return m
}

func (m *PipelineMetrics) ObserveEnqueued(jobType, status string) {
	if m == nil {
		return
	}
	m.enqueuedTotal.WithLabelValues(jobType, status).Inc()
}

func (m *PipelineMetrics) ObserveDispatched(jobType, status string) {
	if m == nil {
		return
	}
	m.dispatchedTotal.WithLabelValues(jobType, status).Inc()
}

func (m *PipelineMetrics) ObserveChannelSend(channel, status string) {
	if m == nil {
		return
	}
	m.channelTotal.WithLabelValues(channel, status).Inc()
}
