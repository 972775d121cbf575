package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/groupexec/internal/domain"
	"github.com/shaiso/groupexec/internal/engine"
	"github.com/shaiso/groupexec/internal/orchestrator"
)

// PlanStarter запускает план на именованном контроллере.
// Реализуется orchestrator.Host.
type PlanStarter interface {
	Start(ctx context.Context, controllerID string, plan domain.ExecutionPlan) (uuid.UUID, error)
}

// PlanHandler обрабатывает сообщения plan.requested из plans.pending.
type PlanHandler struct {
	starter PlanStarter
	logger  *slog.Logger
}

// NewPlanHandler создаёт обработчик.
func NewPlanHandler(starter PlanStarter, logger *slog.Logger) *PlanHandler {
	return &PlanHandler{
		starter: starter,
		logger:  logger,
	}
}

// Handle — mq.Handler для consumer'а plans.pending.
//
// Занятый контроллер не повод для повтора: план подтверждается
// и пропускается, как повторный запуск из UI.
func (h *PlanHandler) Handle(ctx context.Context, d *Delivery) error {
	if d.Message.Type != MessageTypePlanRequested {
		return fmt.Errorf("%w: unexpected message type %q", ErrPermanent, d.Message.Type)
	}

	payload, err := ParsePayload[PlanPayload](&d.Message)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPermanent, err)
	}
	if payload.ControllerID == "" {
		return fmt.Errorf("%w: controller_id is required", ErrPermanent)
	}

	plan := payload.Plan
	if payload.Repeat > 1 {
		plan = engine.Repeat(plan, payload.Repeat, payload.GroupDelay)
	}

	runID, err := h.starter.Start(ctx, payload.ControllerID, plan)
	switch {
	case errors.Is(err, orchestrator.ErrAlreadyRunning):
		h.logger.Warn("plan skipped, controller is busy",
			"controller_id", payload.ControllerID,
			"message_id", d.Message.ID,
		)
		return nil
	case errors.Is(err, orchestrator.ErrControllerNotFound):
		return fmt.Errorf("%w: unknown controller %s", ErrPermanent, payload.ControllerID)
	case errors.Is(err, orchestrator.ErrControllerClosed):
		// Процесс останавливается: сообщение заберёт другой экземпляр
		return err
	case err != nil:
		return fmt.Errorf("start plan on %s: %w", payload.ControllerID, err)
	}

	h.logger.Info("plan started from queue",
		"controller_id", payload.ControllerID,
		"run_id", runID,
		"steps", len(plan),
	)
	return nil
}
