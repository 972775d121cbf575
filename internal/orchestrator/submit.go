package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/groupexec/internal/domain"
	"github.com/shaiso/groupexec/internal/telemetry"
)

// Режимы отправки (метка метрик).
const (
	modeBulk       = "bulk"
	modeSequential = "sequential"
)

// submitter отправляет задания одной итерации шага и ждёт очередь.
//
// Варианты:
//   - sequentialSubmitter — по одному заданию, ожидание после каждого
//   - bulkSubmitter — все задания одним вызовом, при ошибке переход
//     на sequentialSubmitter
//
// Выбор делается один раз в New по наличию Config.Batch.
type submitter interface {
	mode() string
	submit(ctx context.Context, run *activeRun, jobs []domain.JobHandle, logger *slog.Logger) error
}

type sequentialSubmitter struct {
	queue   QueueClient
	drainer *drainer
}

func (s *sequentialSubmitter) mode() string { return modeSequential }

func (s *sequentialSubmitter) submit(ctx context.Context, run *activeRun, jobs []domain.JobHandle, logger *slog.Logger) error {
	for i, job := range jobs {
		if run.token.Cancelled() {
			logger.Info("cancelled between job submissions", "submitted", i, "total", len(jobs))
			return nil
		}

		if err := s.queue.SubmitOne(ctx, job); err != nil {
			telemetry.SubmissionsTotal.WithLabelValues(modeSequential, "error").Inc()
			return fmt.Errorf("%w: job %s: %w", ErrSubmissionFailed, job.ID, err)
		}
		telemetry.SubmissionsTotal.WithLabelValues(modeSequential, "ok").Inc()
		logger.Debug("job submitted", "job_id", job.ID, "index", i+1, "total", len(jobs))

		if !s.drainer.wait(ctx, run.token.Done(), logger) {
			return nil
		}
	}
	return nil
}

type bulkSubmitter struct {
	batch    BatchSubmitter
	drainer  *drainer
	fallback *sequentialSubmitter
}

func (s *bulkSubmitter) mode() string { return modeBulk }

func (s *bulkSubmitter) submit(ctx context.Context, run *activeRun, jobs []domain.JobHandle, logger *slog.Logger) error {
	err := s.batch.SubmitBatch(ctx, jobs)
	if err == nil {
		telemetry.SubmissionsTotal.WithLabelValues(modeBulk, "ok").Inc()
		logger.Debug("jobs submitted in bulk", "jobs", len(jobs))
		s.drainer.wait(ctx, run.token.Done(), logger)
		return nil
	}

	telemetry.SubmissionsTotal.WithLabelValues(modeBulk, "error").Inc()
	telemetry.FallbacksTotal.Inc()
	logger.Warn("bulk submission failed, falling back to sequential",
		"error", err,
		"jobs", len(jobs),
	)

	if run.token.Cancelled() {
		return nil
	}
	return s.fallback.submit(ctx, run, jobs, logger)
}
