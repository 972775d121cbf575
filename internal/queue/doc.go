// Package queue — HTTP-клиент удалённой очереди заданий.
//
// Очередь — один конвейер с API:
//   - GET  /queue     — выполняющиеся и ожидающие задания
//   - POST /prompt    — отправка заданий (targets — id выходных узлов)
//   - POST /interrupt — прерывание выполняющегося задания
//
// Client реализует orchestrator.QueueClient и orchestrator.BatchSubmitter.
// StaticResolver реализует orchestrator.GroupResolver по таблице из конфигурации.
package queue
