// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go             — Handler с DI (host, история, publisher, logger)
//   - routes.go              — регистрация маршрутов
//   - middleware.go          — middleware (logging, metrics, recovery)
//   - response.go            — унифицированные JSON-ответы и обработка ошибок
//   - dto.go                 — Data Transfer Objects (request/response)
//   - controller_handler.go  — обработчики для /controllers
//   - run_handler.go         — обработчики для /runs (история)
//   - schedule_handler.go    — обработчики для /schedules и /groups
//
// API управляет контроллерами: запуск плана, отмена, состояние и
// строка статуса панели. История runs доступна, если подключён Postgres.
package api
