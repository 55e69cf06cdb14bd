package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shenikar/resqlink/internal/models"
)

const namespace = "resqlink"

// Metrics - метрики Prometheus сервиса инцидентов.
// У каждого экземпляра свой реестр, несколько роутеров в тестах не конфликтуют.
type Metrics struct {
	registry *prometheus.Registry

	RequestCounter    *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	RequestsInFlight  *prometheus.GaugeVec
	IncidentsByStatus *prometheus.GaugeVec
	IncidentsActive   prometheus.Gauge
	StorePoolStats    *prometheus.GaugeVec
}

// NewMetrics создает реестр и регистрирует в нем все метрики
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
			[]string{"method"},
		),
		IncidentsByStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "incidents",
				Name:      "by_status",
				Help:      "Number of stored incidents per status",
			},
			[]string{"status"},
		),
		IncidentsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "incidents",
				Name:      "active",
				Help:      "Number of pending and in-progress incidents",
			},
		),
		StorePoolStats: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "connection_pool",
				Help:      "Store connection pool statistics",
			},
			[]string{"stat"}, // total, acquired, idle
		),
	}
}

// Middleware считает запросы, их длительность и число выполняемых по маршруту
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method

		m.RequestsInFlight.WithLabelValues(method).Inc()
		defer m.RequestsInFlight.WithLabelValues(method).Dec()

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		m.RequestCounter.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Handler отдает реестр в текстовом формате Prometheus
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordIncidentStats обновляет счетчики инцидентов по сводке панели
func (m *Metrics) RecordIncidentStats(stats *models.Stats) {
	for _, s := range models.Statuses {
		m.IncidentsByStatus.WithLabelValues(string(s)).Set(float64(stats.ByStatus[string(s)]))
	}
	m.IncidentsActive.Set(float64(stats.Active))
}

// RecordPoolStats записывает состояние пула соединений хранилища
func (m *Metrics) RecordPoolStats(total, acquired, idle int32) {
	m.StorePoolStats.WithLabelValues("total").Set(float64(total))
	m.StorePoolStats.WithLabelValues("acquired").Set(float64(acquired))
	m.StorePoolStats.WithLabelValues("idle").Set(float64(idle))
}
