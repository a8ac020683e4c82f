// Package metrics exposes the bot's Prometheus series:
//
//	triggerbot_cycles_total{outcome}     cycles by result kind
//	triggerbot_orders_total{side,result} orders placed, result ok|failed
//	triggerbot_fund_available            ledger available balance
//	triggerbot_fund_reserved             ledger reserved balance
//	triggerbot_lock_wait_seconds         time spent waiting for the cycle lock
//
// Values are recorded with primitive types so the trading packages do not depend on this one.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bot's Prometheus series on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	cycles    *prometheus.CounterVec
	orders    *prometheus.CounterVec
	available prometheus.Gauge
	reserved  prometheus.Gauge
	lockWait  prometheus.Histogram
}

// New registers the series on a fresh registry, which also carries the Go and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triggerbot_cycles_total",
				Help: "Trading cycles by outcome",
			},
			[]string{"outcome"},
		),
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triggerbot_orders_total",
				Help: "Orders placed by side and result",
			},
			[]string{"side", "result"},
		),
		available: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "triggerbot_fund_available",
			Help: "Spendable quote balance in the fund ledger",
		}),
		reserved: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "triggerbot_fund_reserved",
			Help: "Quote balance held against in-flight orders",
		}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "triggerbot_lock_wait_seconds",
			Help:    "Time spent waiting for the cycle lock",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
	}
	m.reg.MustRegister(m.cycles, m.orders, m.available, m.reserved, m.lockWait)
	m.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// Registry returns the registry the series live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCycle(outcome string) {
	m.cycles.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveOrder(side string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.orders.WithLabelValues(side, result).Inc()
}

func (m *Metrics) SetFund(available, reserved float64) {
	m.available.Set(available)
	m.reserved.Set(reserved)
}

func (m *Metrics) ObserveLockWait(seconds float64) {
	m.lockWait.Observe(seconds)
}
