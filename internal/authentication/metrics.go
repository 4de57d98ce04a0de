package authentication

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess  = "success"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// Metrics counts authentication outcomes. A nil *Metrics records nothing.
type Metrics struct {
	logins     *prometheus.CounterVec
	refreshes  *prometheus.CounterVec
	authorizes *prometheus.CounterVec
	logouts    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "equipment",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "equipment",
			Subsystem: "auth",
			Name:      "refreshes_total",
			Help:      "Refresh token rotations by outcome.",
		}, []string{"outcome"}),
		authorizes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "equipment",
			Subsystem: "auth",
			Name:      "authorizations_total",
			Help:      "Access token checks by outcome.",
		}, []string{"outcome"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "equipment",
			Subsystem: "auth",
			Name:      "logouts_total",
			Help:      "Refresh tokens revoked through logout.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.logins, m.refreshes, m.authorizes, m.logouts)
	}
	return m
}

func (m *Metrics) login(outcome string) {
	if m != nil {
		m.logins.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) refresh(outcome string) {
	if m != nil {
		m.refreshes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) authorize(outcome string) {
	if m != nil {
		m.authorizes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) logout() {
	if m != nil {
		m.logouts.Inc()
	}
}
