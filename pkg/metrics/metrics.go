package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collectors struct {
	Checkouts      *prometheus.CounterVec
	GatewayLatency prometheus.Histogram
	Settlements    *prometheus.CounterVec
}

// New registers the collectors on reg under the service subsystem. Pass
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func New(reg prometheus.Registerer, service string) *Collectors {
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketplace",
		Subsystem: service,
		Name:      "checkouts_total",
		Help:      "Checkout attempts by payment method and outcome kind.",
	}, []string{"payment_method", "outcome"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "marketplace",
		Subsystem: service,
		Name:      "gateway_session_duration_ms",
		Help:      "Payment gateway session creation latency in milliseconds.",
		Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketplace",
		Subsystem: service,
		Name:      "settlements_total",
		Help:      "Gateway confirmations handled by result.",
	}, []string{"result"})

	reg.MustRegister(checkouts, latency, settlements)
	return &Collectors{Checkouts: checkouts, GatewayLatency: latency, Settlements: settlements}
}

// NewRegistry returns a registry carrying the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
