package orchestrator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// subscriberBuffer — размер буфера канала подписчика.
const subscriberBuffer = 16

// InterruptEvent — сигнал прерывания общей очереди.
type InterruptEvent struct {
	// Source — контроллер, который запросил прерывание.
	Source string `json:"source"`

	// RunID — run, который отменялся в Source.
	RunID uuid.UUID `json:"run_id"`

	// Reason — причина (для логов).
	Reason string `json:"reason,omitempty"`

	// Remote — событие пришло из другого процесса.
	Remote bool `json:"-"`

	At time.Time `json:"at"`
}

// Subscription — подписка контроллера на шину.
type Subscription struct {
	// C получает события. Закрывается при Unsubscribe.
	C <-chan InterruptEvent

	id   uint64
	name string
	ch   chan InterruptEvent
}

// InterruptBus — шина прерываний между контроллерами.
//
// Очередь одна на всех, поэтому прерывание, запрошенное одним
// контроллером, должны увидеть все остальные. Контроллер подписывается
// при создании и отписывается при Close.
type InterruptBus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	hooks  []func(InterruptEvent)
	logger *slog.Logger
}

// NewInterruptBus создаёт шину.
func NewInterruptBus(logger *slog.Logger) *InterruptBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InterruptBus{
		subs:   make(map[uint64]*Subscription),
		logger: logger,
	}
}

// Subscribe подписывает контроллер name.
// События, опубликованные самим name локально, ему не доставляются.
func (b *InterruptBus) Subscribe(name string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	ch := make(chan InterruptEvent, subscriberBuffer)
	sub := &Subscription{C: ch, id: b.nextID, name: name, ch: ch}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe удаляет подписку и закрывает её канал. Повторный вызов безопасен.
func (b *InterruptBus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
}

// OnPublish регистрирует хук для локально опубликованных событий
// (например, пересылка в RabbitMQ).
func (b *InterruptBus) OnPublish(fn func(InterruptEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = append(b.hooks, fn)
}

// Publish рассылает локальное событие всем подписчикам, кроме Source,
// и вызывает хуки.
func (b *InterruptBus) Publish(ev InterruptEvent) {
	ev.Remote = false

	b.mu.RLock()
	hooks := make([]func(InterruptEvent), len(b.hooks))
	copy(hooks, b.hooks)
	b.fanOut(ev)
	b.mu.RUnlock()

	for _, hook := range hooks {
		hook(ev)
	}
}

// Deliver рассылает событие из другого процесса всем подписчикам.
// Хуки не вызываются, чтобы событие не ушло обратно.
func (b *InterruptBus) Deliver(ev InterruptEvent) {
	ev.Remote = true

	b.mu.RLock()
	defer b.mu.RUnlock()
	b.fanOut(ev)
}

// SubscriberCount возвращает количество подписок.
func (b *InterruptBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// fanOut вызывается под b.mu (на чтение).
func (b *InterruptBus) fanOut(ev InterruptEvent) {
	for _, sub := range b.subs {
		if !ev.Remote && sub.name == ev.Source {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("interrupt subscriber buffer full, event dropped",
				"subscriber", sub.name,
				"source", ev.Source,
			)
		}
	}
}
