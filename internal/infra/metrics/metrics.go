package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_api_requests_total",
		Help: "Запросы к API инвентаря по методу, эндпоинту и статусу.",
	}, []string{"method", "endpoint", "status"})

	APILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inventory_api_request_duration_seconds",
		Help:    "Длительность запросов к API инвентаря.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	AuthTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_auth_transitions_total",
		Help: "Переходы состояния авторизации.",
	}, []string{"state"})

	QuantityUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_quantity_updates_total",
		Help: "Оптимистичные изменения количества по результату.",
	}, []string{"result"})
)
