package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики оркестратора групп.
//
// Регистрируются в prometheus.DefaultRegisterer при импорте пакета
// и отдаются через promhttp.Handler() на /metrics.
var (
	// RunsTotal — завершённые runs по финальному статусу.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupexec_runs_total",
		Help: "Total number of finished runs by terminal status",
	}, []string{"status"})

	// UnitsTotal — единицы прогресса, дождавшиеся опустошения очереди.
	UnitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groupexec_units_total",
		Help: "Total number of completed progress units",
	})

	// SubmissionsTotal — отправки в очередь по режиму (bulk/sequential) и результату.
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupexec_submissions_total",
		Help: "Total number of queue submissions by mode and result",
	}, []string{"mode", "result"})

	// FallbacksTotal — переходы с bulk на последовательную отправку.
	FallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groupexec_fallbacks_total",
		Help: "Total number of bulk submission fallbacks to sequential mode",
	})

	// PollErrorsTotal — ошибки опроса статуса очереди.
	PollErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groupexec_poll_errors_total",
		Help: "Total number of failed queue status polls",
	})

	// InterruptsTotal — прерывания по источнику (local/peer/remote).
	InterruptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupexec_interrupts_total",
		Help: "Total number of interrupts by origin",
	}, []string{"origin"})

	// ActiveRuns — количество выполняющихся runs.
	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "groupexec_active_runs",
		Help: "Number of runs currently executing",
	})

	// DrainWaitSeconds — длительность ожидания опустошения очереди.
	DrainWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "groupexec_drain_wait_seconds",
		Help:    "Time spent waiting for the queue to drain",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	// HTTPRequestsTotal — запросы к API по методу и коду ответа.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupexec_http_requests_total",
		Help: "Total number of API requests by method and status code",
	}, []string{"method", "code"})
)
