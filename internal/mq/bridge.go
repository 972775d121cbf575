package mq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/groupexec/internal/orchestrator"
)

// forwardTimeout — таймаут публикации одного прерывания в RabbitMQ.
const forwardTimeout = 5 * time.Second

// InterruptPublisher публикует прерывания в обменник.
// Реализуется *Publisher.
type InterruptPublisher interface {
	PublishInterrupt(ctx context.Context, payload InterruptPayload) error
}

// InterruptBridge связывает локальную шину прерываний с fanout
// обменником groupexec.interrupts.
//
// Локальные события уходят в обменник, события других процессов
// доставляются в шину через Deliver. Собственное эхо отбрасывается
// по InstanceID.
type InterruptBridge struct {
	bus        *orchestrator.InterruptBus
	publisher  InterruptPublisher
	instanceID string
	logger     *slog.Logger

	wg sync.WaitGroup
}

// NewInterruptBridge создаёт мост. instanceID должен быть уникален для процесса.
func NewInterruptBridge(bus *orchestrator.InterruptBus, publisher InterruptPublisher, instanceID string, logger *slog.Logger) *InterruptBridge {
	return &InterruptBridge{
		bus:        bus,
		publisher:  publisher,
		instanceID: instanceID,
		logger:     logger,
	}
}

// Attach подписывает мост на локальные публикации шины.
func (b *InterruptBridge) Attach() {
	b.bus.OnPublish(b.forward)
}

// forward вызывается синхронно из InterruptBus.Publish,
// поэтому сама публикация уходит в горутину.
func (b *InterruptBridge) forward(ev orchestrator.InterruptEvent) {
	payload := InterruptPayload{
		InstanceID: b.instanceID,
		Source:     ev.Source,
		RunID:      ev.RunID,
		Reason:     ev.Reason,
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
		defer cancel()

		if err := b.publisher.PublishInterrupt(ctx, payload); err != nil {
			b.logger.Warn("failed to forward interrupt",
				"source", ev.Source,
				"run_id", ev.RunID,
				"error", err,
			)
		}
	}()
}

// Handle — mq.Handler для exclusive очереди прерываний.
func (b *InterruptBridge) Handle(ctx context.Context, d *Delivery) error {
	if d.Message.Type != MessageTypeInterruptRequested {
		return fmt.Errorf("%w: unexpected message type %q", ErrPermanent, d.Message.Type)
	}

	payload, err := ParsePayload[InterruptPayload](&d.Message)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPermanent, err)
	}

	if payload.InstanceID == b.instanceID {
		return nil
	}

	b.logger.Info("remote interrupt received",
		"instance_id", payload.InstanceID,
		"source", payload.Source,
		"run_id", payload.RunID,
	)

	b.bus.Deliver(orchestrator.InterruptEvent{
		Source: payload.Source,
		RunID:  payload.RunID,
		Reason: payload.Reason,
		At:     d.Message.Timestamp,
	})
	return nil
}

// Wait ждёт завершения отправок, начатых forward.
func (b *InterruptBridge) Wait() {
	b.wg.Wait()
}
