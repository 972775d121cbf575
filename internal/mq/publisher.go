package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/groupexec/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypePlanRequested      MessageType = "plan.requested"
	MessageTypeInterruptRequested MessageType = "interrupt.requested"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// PlanPayload — запрос на выполнение плана контроллером.
type PlanPayload struct {
	// ControllerID — панель, которая выполнит план.
	ControllerID string `json:"controller_id"`

	// Plan — список шагов.
	Plan domain.ExecutionPlan `json:"plan"`

	// Repeat — сколько раз повторить весь план (0 и 1 — один раз).
	Repeat int `json:"repeat,omitempty"`

	// GroupDelay — задержка между повторами плана, секунды.
	GroupDelay float64 `json:"group_delay,omitempty"`
}

// InterruptPayload — прерывание общей очереди, рассылаемое всем процессам.
type InterruptPayload struct {
	// InstanceID — процесс-отправитель. Свои сообщения процесс пропускает.
	InstanceID string `json:"instance_id"`

	// Source — контроллер, запросивший прерывание.
	Source string `json:"source"`

	RunID  uuid.UUID `json:"run_id"`
	Reason string    `json:"reason,omitempty"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message, persistent bool) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	mode := amqp.Transient
	if persistent {
		mode = amqp.Persistent
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: mode,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishPlan публикует план для выполнения.
// Потребитель: PlanHandler любого процесса groupexec-server.
func (p *Publisher) PublishPlan(ctx context.Context, payload PlanPayload) error {
	msg := newMessage(MessageTypePlanRequested, payload)
	return p.Publish(ctx, ExchangePlans, RoutingKeyPending, msg, true)
}

// PublishInterrupt рассылает прерывание всем процессам.
// Прерывание имеет смысл только сейчас, поэтому сообщение не персистентное.
func (p *Publisher) PublishInterrupt(ctx context.Context, payload InterruptPayload) error {
	msg := newMessage(MessageTypeInterruptRequested, payload)
	return p.Publish(ctx, ExchangeInterrupts, RoutingKeyNone, msg, false)
}

func newMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}
