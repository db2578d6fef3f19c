package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the vault's ambient Prometheus counters — exposition only,
// never a business decision input.
type Metrics struct {
	VerificationOutcomes *prometheus.CounterVec
	WebhookAttempts      *prometheus.CounterVec
	HTTPRequests         *prometheus.CounterVec
}

// NewMetrics registers every counter against the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		VerificationOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "credvault",
			Name:      "verification_outcomes_total",
			Help:      "Count of credential verification outcomes by protocol and status.",
		}, []string{"protocol", "status"}),
		WebhookAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "credvault",
			Name:      "webhook_delivery_attempts_total",
			Help:      "Count of outbound webhook delivery attempts by outcome.",
		}, []string{"outcome"}),
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "credvault",
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests by route and status class.",
		}, []string{"route", "status_class"}),
	}
}

// Handler returns the Prometheus exposition HTTP handler for GET /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
