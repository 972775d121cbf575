package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/shaiso/groupexec/internal/domain"
	"github.com/shaiso/groupexec/internal/engine"
	"github.com/shaiso/groupexec/internal/mq"
	"github.com/shaiso/groupexec/internal/orchestrator"
)

// ListControllers возвращает все зарегистрированные контроллеры.
// GET /api/v1/controllers
func (h *Handler) ListControllers(w http.ResponseWriter, r *http.Request) {
	controllers := h.host.List()

	result := make([]ControllerResponse, len(controllers))
	for i, c := range controllers {
		result[i] = h.controllerResponse(c)
	}

	List(w, result, len(result))
}

// GetController возвращает состояние контроллера.
// GET /api/v1/controllers/{id}
func (h *Handler) GetController(w http.ResponseWriter, r *http.Request) {
	c, ok := h.host.Get(r.PathValue("id"))
	if !ok {
		NotFound(w, "controller not found")
		return
	}

	Success(w, h.controllerResponse(c))
}

// StartRun запускает план на контроллере.
// Контроллер создаётся при первом обращении.
// POST /api/v1/controllers/{id}/runs
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		BadRequest(w, "controller id is required")
		return
	}

	var req StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}

	plan, err := buildPlan(req)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	if req.Queued {
		h.queuePlan(w, r, id, plan)
		return
	}

	// Run живёт дольше запроса: отмена только через CancelRun или shutdown.
	runID, err := h.host.Start(context.WithoutCancel(r.Context()), id, plan)
	if HandleControllerError(w, h.logger, err) {
		return
	}

	Accepted(w, StartRunResponse{
		ControllerID: id,
		RunID:        &runID,
		TotalSteps:   engine.TotalUnits(plan),
	})
}

// queuePlan публикует план в RabbitMQ. Его запустит PlanHandler
// любого экземпляра сервера.
func (h *Handler) queuePlan(w http.ResponseWriter, r *http.Request, id string, plan domain.ExecutionPlan) {
	if h.publisher == nil {
		InvalidState(w, "plan queue is not configured")
		return
	}

	if err := h.publisher.PublishPlan(r.Context(), mq.PlanPayload{ControllerID: id, Plan: plan}); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Accepted(w, StartRunResponse{
		ControllerID: id,
		TotalSteps:   engine.TotalUnits(plan),
		Queued:       true,
	})
}

// CancelRun отменяет текущий run контроллера.
// POST /api/v1/controllers/{id}/cancel
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := h.host.Cancel(r.Context(), id)
	if HandleControllerError(w, h.logger, err) {
		return
	}

	c, ok := h.host.Get(id)
	if !ok {
		NotFound(w, "controller not found")
		return
	}
	Accepted(w, h.controllerResponse(c))
}

func (h *Handler) controllerResponse(c *orchestrator.RunController) ControllerResponse {
	snap := c.Snapshot()
	if h.board == nil {
		return ControllerFromSnapshot(snap, nil)
	}
	if entry, ok := h.board.Get(c.ID()); ok {
		return ControllerFromSnapshot(snap, &entry)
	}
	return ControllerFromSnapshot(snap, nil)
}

// buildPlan собирает план из запроса: Plan, затем Steps, затем Repeat.
func buildPlan(req StartRunRequest) (domain.ExecutionPlan, error) {
	plan := append(domain.ExecutionPlan{}, req.Plan...)

	for _, spec := range req.Steps {
		step, err := engine.ParseStepSpec(spec)
		if err != nil {
			return nil, err
		}
		plan = engine.Append(plan, step)
	}

	if req.Repeat > 1 {
		plan = engine.Repeat(plan, req.Repeat, req.GroupDelay)
	}
	return plan, nil
}
