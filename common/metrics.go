package common

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// Request outcomes recorded by Metrics.ObserveRequest.
const (
	OutcomeSuccess        = "success"
	OutcomeNotFound       = "not_found"
	OutcomeClientError    = "client_error"
	OutcomeServerError    = "server_error"
	OutcomeTransportError = "transport_error"
)

// Refresh results recorded by Metrics.ObserveRefresh.
const (
	RefreshSuccess = "success"
	RefreshFailure = "failure"
	RefreshJoined  = "joined"
)

// Metrics holds the client-side counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Requests *prometheus.CounterVec
	Refresh  *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg (if non-nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "articleapi",
			Name:      "requests_total",
			Help:      "Outbound API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		Refresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "articleapi",
			Name:      "token_refresh_total",
			Help:      "Access token refresh attempts by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Refresh)
	}
	return m
}

// ObserveRequest counts one attempt. status is 0 for transport failures.
func (m *Metrics) ObserveRequest(method string, status int) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method, Outcome(status)).Inc()
}

func (m *Metrics) ObserveRefresh(result string) {
	if m == nil {
		return
	}
	m.Refresh.WithLabelValues(result).Inc()
}

// Outcome maps a status code to a request outcome label.
func Outcome(status int) string {
	switch {
	case status == 0:
		return OutcomeTransportError
	case status == http.StatusNotFound:
		return OutcomeNotFound
	case status >= 200 && status < 300:
		return OutcomeSuccess
	case status >= 500:
		return OutcomeServerError
	default:
		return OutcomeClientError
	}
}
