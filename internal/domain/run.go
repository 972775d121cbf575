package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — запись об одном выполнении плана.
//
// Run создаётся, когда контроллер принимает план, и обновляется
// при переходе в финальный статус. Используется только для истории:
// управляющее состояние живёт в контроллере.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// ControllerID — контроллер (панель), выполнявший план.
	ControllerID string `json:"controller_id"`

	// Plan — нормализованный план.
	Plan ExecutionPlan `json:"plan"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// CurrentStep — количество завершённых единиц прогресса.
	CurrentStep int `json:"current_step"`

	// TotalSteps — сумма RepeatCount по шагам, кроме задержек.
	TotalSteps int `json:"total_steps"`

	// Error — текст ошибки, если run завершился с FAILED.
	Error string `json:"error,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения (в любом финальном статусе).
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания записи.
	CreatedAt time.Time `json:"created_at"`
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в статус RUNNING.
func (r *Run) MarkRunning(now time.Time) {
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// MarkCompleted переводит run в статус COMPLETED.
func (r *Run) MarkCompleted(now time.Time) {
	r.Status = RunStatusCompleted
	r.FinishedAt = &now
}

// MarkFailed переводит run в статус FAILED с ошибкой.
func (r *Run) MarkFailed(now time.Time, err string) {
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Error = err
}

// MarkCancelled переводит run в статус CANCELLED.
func (r *Run) MarkCancelled(now time.Time) {
	r.Status = RunStatusCancelled
	r.FinishedAt = &now
}
