package engine

import (
	"errors"
	"strconv"
)

// Ошибки разбора и валидации плана.
var (
	// ErrEmptyPlanDocument — документ плана пуст.
	ErrEmptyPlanDocument = errors.New("plan document is empty")

	// ErrInvalidPlan — документ плана не удалось разобрать.
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrInvalidStepSpec — неверная компактная запись шага.
	ErrInvalidStepSpec = errors.New("invalid step spec")
)

// ValidationError — ошибка разбора с контекстом.
type ValidationError struct {
	Index   int    // индекс шага в плане (-1, если ошибка не относится к шагу)
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return "step #" + strconv.Itoa(e.Index) + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(index int, field, message string, err error) *ValidationError {
	return &ValidationError{
		Index:   index,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// Issue — исправление, внесённое при нормализации плана.
// Не является ошибкой: план остаётся исполнимым.
type Issue struct {
	Index   int    // индекс шага в исходном плане
	Field   string // исправленное поле
	Message string
}

func (i Issue) String() string {
	return "step #" + strconv.Itoa(i.Index) + " " + i.Field + ": " + i.Message
}
