package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "shopkeepers_"

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics bundles station metrics. A nil *Metrics records nothing.
type Metrics struct {
	CreationsTotal *prometheus.CounterVec
	LoadsTotal     *prometheus.CounterVec
	SavesTotal     *prometheus.CounterVec
	SaveLatency    prometheus.Histogram
	Shopkeepers    prometheus.Gauge
	ActiveObjects  prometheus.Gauge
	Respawns       prometheus.Counter
	FeedClients    prometheus.Gauge
}

// New constructs the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CreationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "creations_total",
				Help: "Shopkeeper creation requests by shop type and outcome",
			},
			[]string{"shop_type", "outcome"},
		),
		LoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "loads_total",
				Help: "Shopkeepers loaded from storage by result",
			},
			[]string{"result"},
		),
		SavesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "saves_total",
				Help: "Save file writes by result",
			},
			[]string{"result"},
		),
		SaveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "save_latency_seconds",
			Help:    "Save file encode and write latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		Shopkeepers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "shopkeepers",
			Help: "Registered shopkeepers",
		}),
		ActiveObjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "active_objects",
			Help: "Shopkeepers with a spawned shop object",
		}),
		Respawns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "respawns_total",
			Help: "Shop objects respawned by the periodic check",
		}),
		FeedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "feed_clients",
			Help: "Connected event feed clients",
		}),
	}
	reg.MustRegister(
		m.CreationsTotal,
		m.LoadsTotal,
		m.SavesTotal,
		m.SaveLatency,
		m.Shopkeepers,
		m.ActiveObjects,
		m.Respawns,
		m.FeedClients,
	)
	return m
}

func (m *Metrics) ObserveCreation(shopType, outcome string) {
	if m == nil {
		return
	}
	m.CreationsTotal.WithLabelValues(shopType, outcome).Inc()
}

func (m *Metrics) ObserveLoad(err error) {
	if m == nil {
		return
	}
	m.LoadsTotal.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) ObserveSave(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.SavesTotal.WithLabelValues(result(err)).Inc()
	m.SaveLatency.Observe(d.Seconds())
}

func (m *Metrics) SetCounts(shopkeepers, active int) {
	if m == nil {
		return
	}
	m.Shopkeepers.Set(float64(shopkeepers))
	m.ActiveObjects.Set(float64(active))
}

func (m *Metrics) AddRespawns(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Respawns.Add(float64(n))
}

func (m *Metrics) FeedClientDelta(d int) {
	if m == nil {
		return
	}
	m.FeedClients.Add(float64(d))
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
