package orchestrator

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/groupexec/internal/domain"
)

// Host — набор именованных контроллеров на одной очереди.
//
// Все контроллеры получают общие Queue, Batch, Resolver, Sink,
// Recorder, Clock и шину прерываний из шаблона конфигурации.
type Host struct {
	template Config
	bus      *InterruptBus
	logger   *slog.Logger

	mu          sync.RWMutex
	controllers map[string]*RunController
	sealed      bool
	closed      bool
}

// NewHost создаёт Host. template.ID игнорируется.
func NewHost(template Config) *Host {
	logger := template.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bus := template.Bus
	if bus == nil {
		bus = NewInterruptBus(logger)
		template.Bus = bus
	}

	return &Host{
		template:    template,
		bus:         bus,
		logger:      logger,
		controllers: make(map[string]*RunController),
	}
}

// Bus возвращает общую шину прерываний.
func (h *Host) Bus() *InterruptBus {
	return h.bus
}

// Controller возвращает контроллер id, создавая его при необходимости.
// После Seal новые контроллеры не создаются: ErrControllerNotFound.
func (h *Host) Controller(id string) (*RunController, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrControllerClosed
	}

	if c, ok := h.controllers[id]; ok {
		return c, nil
	}
	if h.sealed {
		return nil, ErrControllerNotFound
	}

	cfg := h.template
	cfg.ID = id
	c := New(cfg)
	h.controllers[id] = c

	h.logger.Info("controller registered", "controller_id", id)
	return c, nil
}

// Seal фиксирует набор контроллеров. Каждый контроллер держит
// подписку и горутину, поэтому сервер не создаёт их по ID из запроса.
func (h *Host) Seal() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sealed = true
}

// Get возвращает существующий контроллер.
func (h *Host) Get(id string) (*RunController, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.controllers[id]
	return c, ok
}

// List возвращает контроллеры, отсортированные по ID.
func (h *Host) List() []*RunController {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]*RunController, 0, len(h.controllers))
	for _, c := range h.controllers {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID() < result[j].ID()
	})
	return result
}

// Start запускает план на контроллере id.
func (h *Host) Start(ctx context.Context, id string, plan domain.ExecutionPlan) (uuid.UUID, error) {
	c, err := h.Controller(id)
	if err != nil {
		return uuid.Nil, err
	}
	return c.Start(ctx, plan)
}

// Cancel отменяет run на контроллере id.
func (h *Host) Cancel(ctx context.Context, id string) error {
	c, ok := h.Get(id)
	if !ok {
		return ErrControllerNotFound
	}
	return c.Cancel(ctx)
}

// Close закрывает все контроллеры. Выполняющиеся runs отменяются.
func (h *Host) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	controllers := make([]*RunController, 0, len(h.controllers))
	for _, c := range h.controllers {
		controllers = append(controllers, c)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range controllers {
		wg.Add(1)
		go func(c *RunController) {
			defer wg.Done()
			c.Close()
		}(c)
	}
	wg.Wait()

	h.logger.Info("host closed", "controllers", len(controllers))
}
