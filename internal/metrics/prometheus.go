package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "pm_dip_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics  *Metrics
	registry *prometheus.Registry
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	newCounter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(c)
		return c
	}
	m := &Metrics{
		SignalsDetected: promCounter{newCounter("signals_total", "Total number of movement signals detected.")},
		OrdersPlaced:    promCounter{newCounter("orders_placed_total", "Total number of filled order submissions.")},
		OrdersFailed:    promCounter{newCounter("orders_failed_total", "Total number of failed or unfilled order submissions.")},
		CyclesCompleted: promCounter{newCounter("cycles_completed_total", "Total number of hedge cycles closed.")},
		BreakerEngaged:  promCounter{newCounter("circuit_breaker_engaged_total", "Total number of circuit breaker engagements.")},
	}
	return &Prometheus{Metrics: m, registry: registry}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
