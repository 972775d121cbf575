// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go   — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go     — объявление exchanges, queues, bindings
//   - publisher.go    — публикация сообщений
//   - consumer.go     — потребление сообщений из очередей
//   - plan_handler.go — запуск планов, пришедших через очередь
//   - bridge.go       — пересылка прерываний между процессами
//
// Типы сообщений:
//   - plan.requested      — план для выполнения на контроллере
//   - interrupt.requested — общая очередь заданий прервана
//
// Exchanges:
//   - groupexec.plans      — планы (direct)
//   - groupexec.interrupts — прерывания (fanout)
//   - groupexec.dlq        — dead letter queue
package mq
