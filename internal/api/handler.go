package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/groupexec/internal/domain"
	"github.com/shaiso/groupexec/internal/mq"
	"github.com/shaiso/groupexec/internal/orchestrator"
	"github.com/shaiso/groupexec/internal/repo"
	"github.com/shaiso/groupexec/internal/scheduler"
)

// RunStore — чтение истории runs. Реализуется repo.RunRepo.
type RunStore interface {
	List(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
}

// PlanPublisher ставит план в очередь RabbitMQ. Реализуется mq.Publisher.
type PlanPublisher interface {
	PublishPlan(ctx context.Context, payload mq.PlanPayload) error
}

// ScheduleLister возвращает состояние расписаний. Реализуется scheduler.Scheduler.
type ScheduleLister interface {
	Entries() []scheduler.EntryStatus
}

// GroupLister возвращает известные группы. Реализуется queue.StaticResolver.
type GroupLister interface {
	Groups() []string
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	host      *orchestrator.Host
	board     *orchestrator.StatusBoard
	runs      RunStore
	publisher PlanPublisher
	schedules ScheduleLister
	groups    GroupLister
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
// Все поля, кроме Host и Logger, необязательны.
type Config struct {
	Host      *orchestrator.Host
	Board     *orchestrator.StatusBoard
	Runs      RunStore
	Publisher PlanPublisher
	Schedules ScheduleLister
	Groups    GroupLister
	Logger    *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		host:      cfg.Host,
		board:     cfg.Board,
		runs:      cfg.Runs,
		publisher: cfg.Publisher,
		schedules: cfg.Schedules,
		groups:    cfg.Groups,
		logger:    logger,
	}
}
