package verification

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records verification proxy activity. A nil *Metrics records
// nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	producer *prometheus.HistogramVec
}

// NewMetrics creates the proxy collectors and registers them on reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mmate_pact",
			Name:      "verification_requests_total",
			Help:      "Verification requests served by the proxy, by outcome.",
		}, []string{"outcome"}),
		producer: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mmate_pact",
			Name:      "producer_duration_seconds",
			Help:      "Time spent in message producers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"description"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.requests, m.producer} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

func (m *Metrics) observeRequest(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeProducer(description string, d time.Duration) {
	if m == nil {
		return
	}
	m.producer.WithLabelValues(description).Observe(d.Seconds())
}
