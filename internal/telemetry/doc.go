// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики (runs, отправки, fallback, опрос очереди)
//
// Все бинарники используют единый формат логирования,
// сервер экспортирует метрики на /metrics endpoint.
package telemetry
