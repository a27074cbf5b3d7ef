// Package telemetry exposes Prometheus metrics driven by the event bus.
package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"perp-trader/internal/events"
)

// Metrics holds the registered collectors.
type Metrics struct {
	registry *prometheus.Registry
	bus      *events.Bus

	ticksTotal     prometheus.Counter
	tradesTotal    *prometheus.CounterVec
	tradesRejected *prometheus.CounterVec
	ordersTotal    *prometheus.CounterVec
	riskAlerts     prometheus.Counter
	accountValue   prometheus.Gauge
	marginRatio    prometheus.Gauge
	openSymbols    prometheus.Gauge
	tickDuration   prometheus.Histogram
	haltedFlag     prometheus.Gauge
	busDrops       prometheus.GaugeFunc
}

// New registers all collectors on a private registry.
func New(bus *events.Bus) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		bus:      bus,
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_ticks_total",
			Help: "Completed decision cycles.",
		}),
		tradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_trades_total",
			Help: "Executed trades by category and side.",
		}, []string{"category", "side"}),
		tradesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_trades_rejected_total",
			Help: "Trade intents rejected before submission.",
		}, []string{"category"}),
		ordersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_orders_total",
			Help: "Order lifecycle events by stage.",
		}, []string{"stage"}),
		riskAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_risk_alerts_total",
			Help: "Risk alerts raised by the margin engine.",
		}),
		accountValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_account_value_usd",
			Help: "Last reported account value.",
		}),
		marginRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_margin_ratio_pct",
			Help: "Effective margin usage as percent of account value.",
		}),
		openSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_open_symbols",
			Help: "Symbols with an open position.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_tick_duration_seconds",
			Help:    "Wall time per decision cycle.",
			Buckets: prometheus.DefBuckets,
		}),
		haltedFlag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_halted",
			Help: "1 when the loop has fail-stopped.",
		}),
	}
	m.busDrops = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "trader_bus_dropped_events_total",
		Help: "Event payloads dropped on slow subscribers.",
	}, func() float64 { return float64(bus.Drops()) })

	reg.MustRegister(
		m.ticksTotal, m.tradesTotal, m.tradesRejected, m.ordersTotal,
		m.riskAlerts, m.accountValue, m.marginRatio, m.openSymbols,
		m.tickDuration, m.haltedFlag, m.busDrops,
	)
	return m
}

// Handler serves the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Start consumes bus events until ctx is cancelled.
func (m *Metrics) Start(ctx context.Context) {
	ticks, unsubTicks := m.bus.Subscribe(events.EventTickSummary, 64)
	executed, unsubExec := m.bus.Subscribe(events.EventTradeExecuted, 64)
	rejected, unsubRej := m.bus.Subscribe(events.EventTradeRejected, 64)
	submitted, unsubSub := m.bus.Subscribe(events.EventOrderSubmitted, 64)
	filled, unsubFill := m.bus.Subscribe(events.EventOrderFilled, 64)
	cancelled, unsubCancel := m.bus.Subscribe(events.EventOrderCancelled, 64)
	alerts, unsubAlert := m.bus.Subscribe(events.EventRiskAlert, 64)
	halted, unsubHalt := m.bus.Subscribe(events.EventLoopHalted, 1)

	go func() {
		defer func() {
			unsubTicks()
			unsubExec()
			unsubRej()
			unsubSub()
			unsubFill()
			unsubCancel()
			unsubAlert()
			unsubHalt()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case p := <-ticks:
				if s, ok := p.(events.TickSummary); ok {
					m.ticksTotal.Inc()
					m.accountValue.Set(s.AccountValue)
					m.marginRatio.Set(s.MarginRatio)
					m.openSymbols.Set(float64(s.OpenSymbols))
					m.tickDuration.Observe(float64(s.DurationMs) / 1000)
				}
			case p := <-executed:
				if r, ok := p.(events.TradeRecord); ok {
					m.tradesTotal.WithLabelValues(r.Category, r.Side).Inc()
				}
			case p := <-rejected:
				if r, ok := p.(events.TradeRecord); ok {
					m.tradesRejected.WithLabelValues(r.Category).Inc()
				}
			case <-submitted:
				m.ordersTotal.WithLabelValues("submitted").Inc()
			case <-filled:
				m.ordersTotal.WithLabelValues("filled").Inc()
			case <-cancelled:
				m.ordersTotal.WithLabelValues("cancelled").Inc()
			case <-alerts:
				m.riskAlerts.Inc()
			case <-halted:
				m.haltedFlag.Set(1)
			}
		}
	}()
}
