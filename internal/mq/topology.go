package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangePlans      Exchange = "groupexec.plans"
	ExchangeInterrupts Exchange = "groupexec.interrupts"
	ExchangeDLQ        Exchange = "groupexec.dlq"
)

// Queues — имена очередей.
// Очередь прерываний у каждого процесса своя (exclusive, имя выдаёт брокер).
const (
	QueuePlansPending Queue = "plans.pending"
	QueueDLQPlans     Queue = "dlq.plans"
)

// Routing keys.
const (
	RoutingKeyPending  RoutingKey = "pending"
	RoutingKeyDLQPlans RoutingKey = "plans"

	// fanout игнорирует routing key.
	RoutingKeyNone RoutingKey = ""
)

// SetupTopology объявляет постоянную часть топологии.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangePlans, amqp.ExchangeDirect},
		{ExchangeInterrupts, amqp.ExchangeFanout},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQPlans),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// plans.pending — невалидные планы уходят в DLQ
		{QueuePlansPending, dlqArgs},
		{QueueDLQPlans, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueuePlansPending, RoutingKeyPending, ExchangePlans},
		{QueueDLQPlans, RoutingKeyDLQPlans, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// DeclareInterruptQueue объявляет очередь прерываний этого процесса
// и привязывает её к fanout обменнику. Очередь удаляется вместе с
// соединением, поэтому consumer вызывает функцию после каждого reconnect.
func DeclareInterruptQueue(ch *amqp.Channel) (string, error) {
	q, err := ch.QueueDeclare(
		"",    // имя выдаёт брокер
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("declare interrupt queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, string(RoutingKeyNone), string(ExchangeInterrupts), false, nil); err != nil {
		return "", fmt.Errorf("bind interrupt queue: %w", err)
	}

	return q.Name, nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  groupexec RabbitMQ Topology:

    groupexec.plans (direct)
    └── plans.pending [routing: pending]
            Consumer: groupexec-server (PlanHandler)
            DLQ: dlq.plans

    groupexec.interrupts (fanout)
    └── amq.gen-* [exclusive, one per process]
            Consumer: groupexec-server (InterruptBridge)

    groupexec.dlq (direct)
    └── dlq.plans [routing: plans]
            Manual processing
  `
}
