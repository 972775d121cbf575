package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/groupexec/internal/domain"
	"github.com/shaiso/groupexec/internal/orchestrator"
)

// Controller DTOs

// StatusLine — строка статуса панели.
type StatusLine struct {
	Text      string    `json:"text"`
	Percent   int       `json:"percent"`
	Alert     string    `json:"alert,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ControllerResponse — ответ с состоянием контроллера.
type ControllerResponse struct {
	orchestrator.Snapshot
	Status *StatusLine `json:"status,omitempty"`
}

// ControllerFromSnapshot собирает ответ из снимка и строки статуса.
func ControllerFromSnapshot(s orchestrator.Snapshot, entry *orchestrator.BoardEntry) ControllerResponse {
	resp := ControllerResponse{Snapshot: s}
	if entry != nil {
		resp.Status = &StatusLine{
			Text:      entry.Text,
			Percent:   entry.Percent,
			Alert:     entry.Alert,
			UpdatedAt: entry.At,
		}
	}
	return resp
}

// Run DTOs

// StartRunRequest — запрос на запуск плана.
//
// План задаётся списком шагов (Plan) и/или компактной записью
// ("A:2:1.5", "delay:3") в Steps; Steps добавляются после Plan.
type StartRunRequest struct {
	Plan       domain.ExecutionPlan `json:"plan,omitempty"`
	Steps      []string             `json:"steps,omitempty"`
	Repeat     int                  `json:"repeat,omitempty"`
	GroupDelay float64              `json:"group_delay,omitempty"`

	// Queued — поставить план в очередь RabbitMQ вместо прямого запуска.
	Queued bool `json:"queued,omitempty"`
}

// StartRunResponse — ответ на запуск плана.
type StartRunResponse struct {
	ControllerID string     `json:"controller_id"`
	RunID        *uuid.UUID `json:"run_id,omitempty"`
	TotalSteps   int        `json:"total_steps"`
	Queued       bool       `json:"queued"`
}

// RunResponse — ответ с run из истории.
type RunResponse struct {
	ID           uuid.UUID            `json:"id"`
	ControllerID string               `json:"controller_id"`
	Plan         domain.ExecutionPlan `json:"plan"`
	Status       string               `json:"status"`
	CurrentStep  int                  `json:"current_step"`
	TotalSteps   int                  `json:"total_steps"`
	Error        string               `json:"error,omitempty"`
	StartedAt    *time.Time           `json:"started_at,omitempty"`
	FinishedAt   *time.Time           `json:"finished_at,omitempty"`
	DurationMs   int64                `json:"duration_ms,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r domain.Run) RunResponse {
	return RunResponse{
		ID:           r.ID,
		ControllerID: r.ControllerID,
		Plan:         r.Plan,
		Status:       string(r.Status),
		CurrentStep:  r.CurrentStep,
		TotalSteps:   r.TotalSteps,
		Error:        r.Error,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		DurationMs:   r.Duration().Milliseconds(),
		CreatedAt:    r.CreatedAt,
	}
}
