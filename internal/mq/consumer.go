package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает одно сообщение.
//
// nil — сообщение подтверждается. Ошибка с ErrPermanent отправляет
// сообщение в DLQ, любая другая возвращает его в очередь: план
// заберёт другой экземпляр сервера.
type Handler func(ctx context.Context, d *Delivery) error

// Delivery — разобранное сообщение.
type Delivery struct {
	Message Message

	// Queue — очередь, из которой пришло сообщение.
	Queue string

	// Redelivered — сообщение уже возвращалось в очередь.
	Redelivered bool
}

// DeclareFunc объявляет очередь на канале и возвращает её имя.
type DeclareFunc func(ch *amqp.Channel) (string, error)

// ConsumerConfig — конфигурация Consumer.
type ConsumerConfig struct {
	// Queue — имя durable очереди (plans.pending).
	Queue string

	// Declare вызывается после каждого переподключения. Нужен для
	// exclusive очереди прерываний, которая живёт только с соединением.
	// Если задан, Queue игнорируется.
	Declare DeclareFunc

	Handler Handler

	// Prefetch — сообщений без ack на канал (default: 1).
	// Для планов 1: контроллер всё равно выполняет один план за раз.
	Prefetch int
}

// settlement — что сделать с сообщением после обработчика.
type settlement int

const (
	settleAck settlement = iota
	settleRequeue
	settleDeadLetter
)

func (s settlement) String() string {
	switch s {
	case settleAck:
		return "ack"
	case settleRequeue:
		return "requeue"
	default:
		return "dead-letter"
	}
}

// settle выбирает исход по ошибке обработчика.
func settle(err error) settlement {
	switch {
	case err == nil:
		return settleAck
	case errors.Is(err, ErrPermanent):
		return settleDeadLetter
	default:
		return settleRequeue
	}
}

// Consumer читает планы или прерывания из очереди RabbitMQ с ручным ack
// и переживает переподключения Connection.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    string
	declare  DeclareFunc
	handler  Handler
	prefetch int

	quit     chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	done     chan struct{}
}

// NewConsumer создаёт Consumer. Чтение начинается в Start.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		logger:   logger,
		queue:    cfg.Queue,
		declare:  cfg.Declare,
		handler:  cfg.Handler,
		prefetch: prefetch,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start читает сообщения до Stop или отмены ctx. Блокирует.
func (c *Consumer) Start(ctx context.Context) error {
	c.started.Store(true)
	defer close(c.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		deliveries, err := c.subscribe()
		if err != nil {
			c.logger.Error("failed to subscribe", "queue", c.queue, "error", err)
		} else {
			c.logger.Info("consumer started", "queue", c.queue)
			c.drain(ctx, deliveries)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Канал потерян: ждём, пока Connection восстановит соединение.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
			c.logger.Info("reconnected, resubscribing", "queue", c.queue)
		}
	}
}

// Stop прекращает чтение и ждёт, пока обработка текущего сообщения
// завершится. Безопасен, если Start не вызывался.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.quit) })
	if c.started.Load() {
		<-c.done
	}
}

// subscribe объявляет очередь (если нужно), выставляет prefetch
// и подписывается на доставку.
func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	if c.declare != nil {
		name, err := c.declare(ch)
		if err != nil {
			return nil, err
		}
		c.queue = name
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	// Ack ручной: сообщение подтверждается только после обработчика.
	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", c.queue, err)
	}
	return deliveries, nil
}

// drain обрабатывает доставки, пока канал открыт.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-deliveries:
			if !ok {
				c.logger.Warn("delivery channel closed", "queue", c.queue)
				return
			}
			c.handle(ctx, raw)
		}
	}
}

// handle разбирает сообщение, вызывает обработчик и подтверждает доставку.
func (c *Consumer) handle(ctx context.Context, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("malformed message, dead-lettering",
			"queue", c.queue,
			"error", err,
			"body", string(raw.Body),
		)
		c.ack(raw, settleDeadLetter)
		return
	}

	logger := c.logger.With("queue", c.queue, "message_id", msg.ID, "type", msg.Type)
	logger.Debug("message received", "redelivered", raw.Redelivered)

	err := c.handler(ctx, &Delivery{
		Message:     msg,
		Queue:       c.queue,
		Redelivered: raw.Redelivered,
	})

	outcome := settle(err)
	if err != nil {
		logger.Error("handler failed", "error", err, "outcome", outcome.String())
	}
	c.ack(raw, outcome)
}

func (c *Consumer) ack(raw amqp.Delivery, outcome settlement) {
	var err error
	switch outcome {
	case settleAck:
		err = raw.Ack(false)
	case settleRequeue:
		err = raw.Nack(false, true)
	case settleDeadLetter:
		// plans.pending настроена с x-dead-letter-exchange
		err = raw.Nack(false, false)
	}
	if err != nil {
		c.logger.Warn("failed to settle message", "queue", c.queue, "outcome", outcome.String(), "error", err)
	}
}

// ParsePayload разбирает Message.Payload в T.
//
// После json.Unmarshal в Message payload — это map[string]any,
// поэтому он кодируется обратно и декодируется в T.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
