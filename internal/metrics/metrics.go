package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Popie52/offlinesync/internal/model"
)

type MetricsFn interface {
	IncActionsEnqueued(kind model.Kind)
	IncActionsCompleted()
	IncSendFailures()
	IncActionsSkipped()

	IncSyncPasses(outcome string)

	SetPendingActions(n int)
	SetSyncInProgress(running bool)
	SetOnline(online bool)
}

const namespace = "offlinesync"

type Metrics struct {
	registry *prometheus.Registry

	// counters
	actionsEnqueued  *prometheus.CounterVec
	actionsCompleted prometheus.Counter
	sendFailures     prometheus.Counter
	actionsSkipped   prometheus.Counter
	syncPasses       *prometheus.CounterVec

	// gauges
	pendingActions prometheus.Gauge
	syncInProgress prometheus.Gauge
	online         prometheus.Gauge
}

// New registers every collector on a private registry, so several instances
// can live in one process (tests, embedded engines).
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		actionsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_enqueued_total",
			Help:      "Actions recorded in the local store, by kind.",
		}, []string{"kind"}),
		actionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_completed_total",
			Help:      "Actions delivered and marked completed.",
		}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Failed send attempts.",
		}),
		actionsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_skipped_total",
			Help:      "Actions passed over because their retries are exhausted.",
		}),
		syncPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_passes_total",
			Help:      "Sync passes that ran, by outcome.",
		}, []string{"outcome"}),
		pendingActions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_actions",
			Help:      "Pending actions seen at the end of the last pass or enqueue.",
		}),
		syncInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_in_progress",
			Help:      "1 while a sync pass is running.",
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online",
			Help:      "1 when the engine considers the network reachable.",
		}),
	}

	m.registry.MustRegister(
		m.actionsEnqueued,
		m.actionsCompleted,
		m.sendFailures,
		m.actionsSkipped,
		m.syncPasses,
		m.pendingActions,
		m.syncInProgress,
		m.online,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// counters
func (m *Metrics) IncActionsEnqueued(kind model.Kind) {
	m.actionsEnqueued.WithLabelValues(string(kind)).Inc()
}
func (m *Metrics) IncActionsCompleted()         { m.actionsCompleted.Inc() }
func (m *Metrics) IncSendFailures()             { m.sendFailures.Inc() }
func (m *Metrics) IncActionsSkipped()           { m.actionsSkipped.Inc() }
func (m *Metrics) IncSyncPasses(outcome string) { m.syncPasses.WithLabelValues(outcome).Inc() }

// gauges
func (m *Metrics) SetPendingActions(n int)        { m.pendingActions.Set(float64(n)) }
func (m *Metrics) SetSyncInProgress(running bool) { m.syncInProgress.Set(boolGauge(running)) }
func (m *Metrics) SetOnline(online bool)          { m.online.Set(boolGauge(online)) }

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the private registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Nop discards everything. Used when no metrics are wired.
type Nop struct{}

func (Nop) IncActionsEnqueued(model.Kind) {}
func (Nop) IncActionsCompleted()          {}
func (Nop) IncSendFailures()              {}
func (Nop) IncActionsSkipped()            {}
func (Nop) IncSyncPasses(string)          {}
func (Nop) SetPendingActions(int)         {}
func (Nop) SetSyncInProgress(bool)        {}
func (Nop) SetOnline(bool)                {}
