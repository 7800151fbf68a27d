// Package metrics exposes the service's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "verification_service"

// Verification outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	codesIssued          prometheus.Counter
	verifications        *prometheus.CounterVec
	notificationFailures prometheus.Counter
	resolutions          *prometheus.CounterVec
	accountsCreated      prometheus.Counter
	syncFailures         *prometheus.CounterVec
	sessions             *prometheus.CounterVec
	requests             *prometheus.CounterVec
}

// New builds the collectors on a fresh registry that also carries the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		codesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "codes_issued_total",
			Help:      "Verification codes persisted.",
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Code verification attempts by outcome.",
		}, []string{"outcome"}),
		notificationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Operator notifications that could not be delivered.",
		}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_resolutions_total",
			Help:      "Identity resolutions by branch.",
		}, []string{"branch"}),
		accountsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accounts_created_total",
			Help:      "Placeholder accounts created during verification.",
		}),
		syncFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_failures_total",
			Help:      "Best-effort synchronization writes that failed, by step.",
		}, []string{"step"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Session issuance decisions by result.",
		}, []string{"result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_requests_total",
			Help:      "Dispatcher requests by action and error kind.",
		}, []string{"action", "kind"}),
	}

	reg.MustRegister(
		m.codesIssued,
		m.verifications,
		m.notificationFailures,
		m.resolutions,
		m.accountsCreated,
		m.syncFailures,
		m.sessions,
		m.requests,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) CodeIssued() {
	if m == nil {
		return
	}
	m.codesIssued.Inc()
}

func (m *Metrics) Verification(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) NotificationFailed() {
	if m == nil {
		return
	}
	m.notificationFailures.Inc()
}

func (m *Metrics) Resolved(branch string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(branch).Inc()
}

func (m *Metrics) AccountCreated() {
	if m == nil {
		return
	}
	m.accountsCreated.Inc()
}

func (m *Metrics) SyncFailed(step string) {
	if m == nil {
		return
	}
	m.syncFailures.WithLabelValues(step).Inc()
}

func (m *Metrics) Session(result string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(result).Inc()
}

// Request counts a dispatcher request; kind is empty on success.
func (m *Metrics) Request(action, kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "none"
	}
	m.requests.WithLabelValues(action, kind).Inc()
}
