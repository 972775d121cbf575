package orchestrator

import (
	"errors"
	"fmt"
)

// Ошибки оркестратора.
var (
	// ErrAlreadyRunning — контроллер уже выполняет план. Предупреждение, не сбой.
	ErrAlreadyRunning = errors.New("controller is already running")

	// ErrNotRunning — отмена запрошена, но выполнять нечего.
	ErrNotRunning = errors.New("controller is not running")

	// ErrAlreadyCancelling — отмена уже запрошена.
	ErrAlreadyCancelling = errors.New("cancellation already requested")

	// ErrControllerClosed — контроллер закрыт.
	ErrControllerClosed = errors.New("controller closed")

	// ErrControllerNotFound — контроллер с таким ID не зарегистрирован.
	ErrControllerNotFound = errors.New("controller not found")

	// ErrNoJobs — в группе нет заданий для отправки.
	ErrNoJobs = errors.New("no submittable jobs in group")

	// ErrSubmissionFailed — очередь отклонила задание.
	ErrSubmissionFailed = errors.New("submission failed")
)

// StepError — ошибка шага плана. Прерывает оставшийся план.
type StepError struct {
	Group string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("execute group %q: %v", e.Group, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// IsWarning возвращает true для ошибок, которые означают
// «нечего делать», а не сбой.
func IsWarning(err error) bool {
	return errors.Is(err, ErrAlreadyRunning) ||
		errors.Is(err, ErrNotRunning) ||
		errors.Is(err, ErrAlreadyCancelling)
}
