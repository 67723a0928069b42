package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shaiso/Herald/internal/domain"
)

var (
	passesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_scheduler_passes_total",
		Help: "Scheduler passes by surface and result",
	}, []string{"surface", "result"})

	passDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "herald_scheduler_pass_duration_seconds",
		Help:    "Duration of a scheduler pass",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"surface"})

	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_schedule_executions_total",
		Help: "Schedule executions by surface and outcome",
	}, []string{"surface", "outcome"})

	pollerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "herald_poller_state",
		Help: "Current poller state (1 for the active state)",
	}, []string{"state"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_http_requests_total",
		Help: "HTTP requests handled by herald services",
	}, []string{"method", "status"})
)

// ObservePass учитывает завершённый проход.
func ObservePass(surface domain.Surface, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	passesTotal.WithLabelValues(string(surface), result).Inc()
	passDuration.WithLabelValues(string(surface)).Observe(d.Seconds())
}

// ObserveExecution учитывает итог выполнения одного schedule.
func ObserveExecution(surface domain.Surface, outcome domain.OutcomeKind) {
	executionsTotal.WithLabelValues(string(surface), outcome.Label()).Inc()
}

// SetPollerState отмечает текущее состояние поллера.
func SetPollerState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		pollerState.WithLabelValues(s).Set(v)
	}
}

// ObserveHTTPRequest учитывает обработанный HTTP запрос.
func ObserveHTTPRequest(method string, status int) {
	httpRequestsTotal.WithLabelValues(method, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
