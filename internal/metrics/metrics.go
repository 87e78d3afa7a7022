package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bandwatch/internal/model"
)

const namespace = "bandwatch"

// Metrics groups the pipeline collectors. All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	snapshots        *prometheus.CounterVec
	eventsCreated    *prometheus.CounterVec
	evaluationErrors *prometheus.CounterVec
	tasksEnqueued    prometheus.Counter
	tasksDropped     *prometheus.CounterVec
	tasksMissing     prometheus.Counter
	deliveries       *prometheus.CounterVec
	channelSends     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "snapshots_total",
			Help: "Telemetry snapshots evaluated, by source.",
		}, []string{"source"}),
		eventsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alert_events_created_total",
			Help: "Alert events created, by rule kind.",
		}, []string{"kind"}),
		evaluationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rule_evaluation_errors_total",
			Help: "Rule evaluations that failed, by rule kind.",
		}, []string{"kind"}),
		tasksEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "dispatch_tasks_enqueued_total",
			Help: "Dispatch tasks accepted by the queue.",
		}),
		tasksDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "dispatch_tasks_dropped_total",
			Help: "Dispatch tasks dropped before delivery, by reason.",
		}, []string{"reason"}),
		tasksMissing: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "dispatch_tasks_missing_event_total",
			Help: "Dispatch tasks whose alert event could not be found.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "deliveries_total",
			Help: "Processed dispatch tasks, by outcome.",
		}, []string{"outcome"}),
		channelSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "channel_sends_total",
			Help: "Channel send attempts, by channel and result.",
		}, []string{"channel", "result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.snapshots,
		m.eventsCreated,
		m.evaluationErrors,
		m.tasksEnqueued,
		m.tasksDropped,
		m.tasksMissing,
		m.deliveries,
		m.channelSends,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// TrackQueue exports the queue depth and capacity as gauges.
func (m *Metrics) TrackQueue(depth, capacity func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "dispatch_queue_depth",
			Help: "Dispatch tasks waiting in the queue.",
		}, func() float64 { return float64(depth()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "dispatch_queue_capacity",
			Help: "Dispatch queue capacity.",
		}, func() float64 { return float64(capacity()) }),
	)
}

func (m *Metrics) SnapshotEvaluated(source string) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(source).Inc()
}

func (m *Metrics) EventCreated(kind model.RuleKind) {
	if m == nil {
		return
	}
	m.eventsCreated.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) EvaluationFailed(kind model.RuleKind) {
	if m == nil {
		return
	}
	m.evaluationErrors.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) TaskEnqueued() {
	if m == nil {
		return
	}
	m.tasksEnqueued.Inc()
}

func (m *Metrics) TaskDropped(reason string) {
	if m == nil {
		return
	}
	m.tasksDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) TaskMissingEvent() {
	if m == nil {
		return
	}
	m.tasksMissing.Inc()
}

func (m *Metrics) Delivered(success, total int) {
	if m == nil {
		return
	}
	outcome := "partial"
	switch {
	case success == total:
		outcome = "success"
	case success == 0:
		outcome = "failure"
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ChannelSend(r model.ChannelResult) {
	if m == nil {
		return
	}
	result := "failure"
	if r.Success {
		result = "success"
	}
	m.channelSends.WithLabelValues(string(r.Channel), result).Inc()
}
