package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	RUNNING → COMPLETED
//	        ↘ FAILED
//	        ↘ CANCELLED
//
// Статуса PENDING нет: run начинается синхронно в момент запуска.
type RunStatus string

const (
	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusCompleted — план выполнен полностью.
	RunStatusCompleted RunStatus = "COMPLETED"

	// RunStatusFailed — run прерван ошибкой шага.
	RunStatusFailed RunStatus = "FAILED"

	// RunStatusCancelled — run отменён пользователем или соседним контроллером.
	RunStatusCancelled RunStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseRunStatus парсит строку в RunStatus.
// Неизвестные значения возвращают пустой статус.
func ParseRunStatus(s string) RunStatus {
	switch RunStatus(s) {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return RunStatus(s)
	default:
		return ""
	}
}

// ControllerState — состояние контроллера.
//
//	IDLE → RUNNING → IDLE
type ControllerState string

const (
	// ControllerStateIdle — контроллер свободен и принимает новый run.
	ControllerStateIdle ControllerState = "IDLE"

	// ControllerStateRunning — контроллер выполняет run.
	ControllerStateRunning ControllerState = "RUNNING"
)
