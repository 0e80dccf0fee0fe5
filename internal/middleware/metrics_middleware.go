package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal - общее количество запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Общее количество HTTP запросов",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration - длительность запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Длительность HTTP запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// RequestsInFlight - количество запросов в обработке
	RequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Текущее количество запросов в обработке",
		},
	)

	// RideOperationsTotal - операции жизненного цикла заявок
	RideOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ride_operations_total",
			Help: "Количество операций над заявками по результату",
		},
		[]string{"operation", "result"},
	)

	// RideStatusTransitionsTotal - выполненные переходы статуса заявок
	RideStatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ride_status_transitions_total",
			Help: "Количество переходов статуса заявок",
		},
		[]string{"from", "to"},
	)
)

// PrometheusMiddleware собирает метрики для HTTP запросов
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Увеличиваем счетчик запросов в обработке
		RequestsInFlight.Inc()
		defer RequestsInFlight.Dec()

		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()

		status := strconv.Itoa(c.Writer.Status())
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}

		RequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(duration)
	}
}

// TrackRideOperation фиксирует результат операции над заявкой
func TrackRideOperation(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	RideOperationsTotal.WithLabelValues(operation, result).Inc()
}

// TrackRideTransition фиксирует выполненный переход статуса
func TrackRideTransition(from, to string) {
	RideStatusTransitionsTotal.WithLabelValues(from, to).Inc()
}
