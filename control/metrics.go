// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for the scheduler, the reactor and the connection
// handlers. Every method is safe on a nil *Metrics so components can run
// without instrumentation.

package control

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hioload"

// Metrics holds the runtime collectors.
type Metrics struct {
	tasksSpawned   prometheus.Counter
	tasksCompleted prometheus.Counter
	tasksFailed    prometheus.Counter
	tasksLive      prometheus.Gauge
	polls          prometheus.Counter
	wakeups        *prometheus.CounterVec // source=local|remote
	inboxOverflows prometheus.Counter

	reactorWaits  prometheus.Counter
	readyEvents   prometheus.Counter
	registrations prometheus.Gauge

	connsAccepted     prometheus.Counter
	connsActive       prometheus.Gauge
	connErrors        *prometheus.CounterVec // phase
	clientDisconnects prometheus.Counter
	shutdownTimeouts  prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg.
// Registration panics on duplicates, like prometheus.MustRegister.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasksSpawned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler",
			Name: "tasks_spawned_total", Help: "Tasks spawned onto the scheduler.",
		}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler",
			Name: "tasks_completed_total", Help: "Tasks that completed without error.",
		}),
		tasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler",
			Name: "tasks_failed_total", Help: "Tasks that completed with an error or panicked.",
		}),
		tasksLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scheduler",
			Name: "tasks_live", Help: "Tasks currently held by the scheduler.",
		}),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler",
			Name: "polls_total", Help: "Task polls.",
		}),
		wakeups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler",
			Name: "wakeups_total", Help: "Wakeups that re-enqueued a task.",
		}, []string{"source"}),
		inboxOverflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler",
			Name: "inbox_overflows_total", Help: "Remote wakes that found the inbox full.",
		}),
		reactorWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reactor",
			Name: "waits_total", Help: "Blocking waits on the multiplexer.",
		}),
		readyEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reactor",
			Name: "ready_events_total", Help: "Ready descriptors reported by the multiplexer.",
		}),
		registrations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "reactor",
			Name: "registrations", Help: "Descriptors registered with the reactor.",
		}),
		connsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "server",
			Name: "connections_accepted_total", Help: "Accepted TCP connections.",
		}),
		connsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "server",
			Name: "connections_active", Help: "Connections with a live handler task.",
		}),
		connErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "server",
			Name: "connection_errors_total", Help: "Fatal per-connection errors by phase.",
		}, []string{"phase"}),
		clientDisconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "server",
			Name: "client_disconnects_total", Help: "Clients that closed before the response was written.",
		}),
		shutdownTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "server",
			Name: "shutdown_timeouts_total", Help: "Graceful shutdowns that hit the deadline.",
		}),
	}

	reg.MustRegister(
		m.tasksSpawned, m.tasksCompleted, m.tasksFailed, m.tasksLive, m.polls, m.wakeups, m.inboxOverflows,
		m.reactorWaits, m.readyEvents, m.registrations,
		m.connsAccepted, m.connsActive, m.connErrors, m.clientDisconnects, m.shutdownTimeouts,
	)
	return m
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) TaskSpawned() {
	if m == nil {
		return
	}
	m.tasksSpawned.Inc()
	m.tasksLive.Inc()
}

func (m *Metrics) TaskFinished(failed bool) {
	if m == nil {
		return
	}
	m.tasksLive.Dec()
	if failed {
		m.tasksFailed.Inc()
	} else {
		m.tasksCompleted.Inc()
	}
}

func (m *Metrics) Polled() {
	if m == nil {
		return
	}
	m.polls.Inc()
}

func (m *Metrics) Woken(remote bool) {
	if m == nil {
		return
	}
	if remote {
		m.wakeups.WithLabelValues("remote").Inc()
	} else {
		m.wakeups.WithLabelValues("local").Inc()
	}
}

// InboxOverflowed is safe from any goroutine.
func (m *Metrics) InboxOverflowed() {
	if m == nil {
		return
	}
	m.inboxOverflows.Inc()
}

func (m *Metrics) ReactorWaited(ready int) {
	if m == nil {
		return
	}
	m.reactorWaits.Inc()
	m.readyEvents.Add(float64(ready))
}

func (m *Metrics) SetRegistrations(n int) {
	if m == nil {
		return
	}
	m.registrations.Set(float64(n))
}

func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.connsAccepted.Inc()
	m.connsActive.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.connsActive.Dec()
}

func (m *Metrics) ConnError(phase string) {
	if m == nil {
		return
	}
	m.connErrors.WithLabelValues(phase).Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.clientDisconnects.Inc()
}

func (m *Metrics) ShutdownTimedOut() {
	if m == nil {
		return
	}
	m.shutdownTimeouts.Inc()
}
