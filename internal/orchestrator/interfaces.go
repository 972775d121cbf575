package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/groupexec/internal/domain"
)

// GroupResolver превращает имя группы в список заданий.
// Неизвестная группа — пустой список без ошибки.
type GroupResolver interface {
	Resolve(ctx context.Context, group string) ([]domain.JobHandle, error)
}

// QueueClient — удалённая очередь заданий с одним конвейером.
type QueueClient interface {
	// Status возвращает глубину очереди. Ошибка считается временной.
	Status(ctx context.Context) (domain.QueueStatus, error)

	// SubmitOne отправляет одно задание.
	SubmitOne(ctx context.Context, job domain.JobHandle) error

	// Interrupt прерывает выполняющееся задание. Best-effort.
	Interrupt(ctx context.Context) error
}

// BatchSubmitter — необязательная возможность отправить все задания
// группы одним вызовом. Если не задан, используется последовательная отправка.
type BatchSubmitter interface {
	SubmitBatch(ctx context.Context, jobs []domain.JobHandle) error
}

// StatusUpdate — сообщение о ходе выполнения.
type StatusUpdate struct {
	ControllerID string    `json:"controller_id"`
	RunID        uuid.UUID `json:"run_id"`
	Text         string    `json:"text"`
	Percent      int       `json:"percent"`
	At           time.Time `json:"at"`
}

// StatusSink получает статус контроллеров. Возвращаемые значения не нужны:
// отчёт — fire-and-forget.
type StatusSink interface {
	// Report обновляет строку статуса и прогресс.
	Report(update StatusUpdate)

	// Alert показывает блокирующее уведомление об ошибке.
	Alert(controllerID, message string)

	// Clear сбрасывает статус контроллера.
	Clear(controllerID string)
}

// RunRecorder сохраняет историю runs. Ошибки только логируются.
type RunRecorder interface {
	RecordStart(ctx context.Context, run *domain.Run) error
	RecordFinish(ctx context.Context, run *domain.Run) error
}
