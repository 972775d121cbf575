package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/groupexec/internal/domain"
)

// Лимиты выборки истории.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// RunRepo — репозиторий истории runs.
//
// Реализует orchestrator.RunRecorder: контроллер пишет запись при старте
// и при переходе в финальный статус.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// RecordStart сохраняет run при запуске.
func (r *RunRepo) RecordStart(ctx context.Context, run *domain.Run) error {
	return r.upsert(ctx, run)
}

// RecordFinish сохраняет финальное состояние run.
// Если запись о старте не дошла до БД, она создаётся здесь.
func (r *RunRepo) RecordFinish(ctx context.Context, run *domain.Run) error {
	return r.upsert(ctx, run)
}

func (r *RunRepo) upsert(ctx context.Context, run *domain.Run) error {
	planJSON, err := json.Marshal(planOrEmpty(run.Plan))
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	query := `
		INSERT INTO group_runs (id, controller_id, plan, status, current_step, total_steps,
		                        error, started_at, finished_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    current_step = EXCLUDED.current_step,
		    error = EXCLUDED.error,
		    finished_at = EXCLUDED.finished_at
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.ControllerID,
		planJSON,
		run.Status,
		run.CurrentStep,
		run.TotalSteps,
		nullString(run.Error),
		run.StartedAt,
		run.FinishedAt,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `
		SELECT id, controller_id, plan, status, current_step, total_steps,
		       error, started_at, finished_at, created_at
		FROM group_runs
		WHERE id = $1
	`
	run, err := scanRun(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// List возвращает историю runs, новые первыми.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	filter = filter.normalize()

	query := `
		SELECT id, controller_id, plan, status, current_step, total_steps,
		       error, started_at, finished_at, created_at
		FROM group_runs
		WHERE ($1::text IS NULL OR controller_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.ControllerID),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// --- Helpers ---

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	ControllerID string
	Status       domain.RunStatus
	Limit        int
	Offset       int
}

func (f RunFilter) normalize() RunFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// rowScanner — общее у pgx.Row и pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	var planJSON []byte
	var runError *string

	err := row.Scan(
		&run.ID,
		&run.ControllerID,
		&planJSON,
		&run.Status,
		&run.CurrentStep,
		&run.TotalSteps,
		&runError,
		&run.StartedAt,
		&run.FinishedAt,
		&run.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if planJSON != nil {
		if err := json.Unmarshal(planJSON, &run.Plan); err != nil {
			return nil, fmt.Errorf("unmarshal plan: %w", err)
		}
	}
	if runError != nil {
		run.Error = *runError
	}

	return &run, nil
}

func planOrEmpty(plan domain.ExecutionPlan) domain.ExecutionPlan {
	if plan == nil {
		return domain.ExecutionPlan{}
	}
	return plan
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
