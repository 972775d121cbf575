package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/shaiso/groupexec/internal/config"
	"github.com/shaiso/groupexec/internal/domain"
	"github.com/shaiso/groupexec/internal/engine"
	"github.com/shaiso/groupexec/internal/orchestrator"
)

// Starter запускает план на именованном контроллере.
// Реализуется orchestrator.Host.
type Starter interface {
	Start(ctx context.Context, controllerID string, plan domain.ExecutionPlan) (uuid.UUID, error)
}

// Scheduler запускает планы по расписаниям из конфигурации.
type Scheduler struct {
	starter  Starter
	clock    clockwork.Clock
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	entries []*entry
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedules []config.ScheduleConfig
	Starter   Starter
	Clock     clockwork.Clock // default: clockwork.NewRealClock()
	Interval  time.Duration   // период тиков (default: 1s)
	Logger    *slog.Logger
}

// EntryStatus — состояние расписания для API.
type EntryStatus struct {
	Name        string     `json:"name"`
	Controller  string     `json:"controller"`
	Cron        string     `json:"cron,omitempty"`
	IntervalSec int        `json:"interval_sec,omitempty"`
	Disabled    bool       `json:"disabled"`
	NextDueAt   *time.Time `json:"next_due_at,omitempty"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	LastRunID   *uuid.UUID `json:"last_run_id,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

type entry struct {
	sched config.ScheduleConfig
	plan  domain.ExecutionPlan

	nextDue   time.Time
	lastRunAt *time.Time
	lastRunID *uuid.UUID
	lastError string
}

// New создаёт Scheduler и вычисляет первое время запуска каждого расписания.
func New(cfg Config) (*Scheduler, error) {
	clk := cfg.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		starter:  cfg.Starter,
		clock:    clk,
		interval: interval,
		logger:   logger,
	}

	now := clk.Now()
	for _, sc := range cfg.Schedules {
		if sc.Cron != "" {
			if err := ValidateCronExpr(sc.Cron); err != nil {
				return nil, fmt.Errorf("schedule %q: %w", sc.Name, err)
			}
		}

		next, err := CalculateNextDue(sc, now)
		if err != nil {
			return nil, err
		}

		plan := sc.Plan
		if sc.Repeat > 1 {
			plan = engine.Repeat(plan, sc.Repeat, sc.GroupDelay)
		}

		s.entries = append(s.entries, &entry{sched: sc, plan: plan, nextDue: next})
	}

	return s, nil
}

// Run вызывает Tick каждые Interval до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "schedules", len(s.entries), "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case now := <-ticker.Chan():
			s.Tick(ctx, now)
		}
	}
}

// Tick запускает расписания, время которых подошло.
// Возвращает количество запущенных runs.
//
// Ошибки одного расписания не блокируют обработку остальных.
// Занятый контроллер — пропуск, а не повтор: следующее время
// вычисляется в любом случае.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due, started int
	for _, e := range s.entries {
		if e.sched.Disabled || now.Before(e.nextDue) {
			continue
		}
		due++

		if s.processEntry(ctx, e, now) {
			started++
		}

		next, err := CalculateNextDue(e.sched, now)
		if err != nil {
			s.logger.Error("failed to calculate next due, disabling schedule",
				"schedule", e.sched.Name,
				"error", err,
			)
			e.sched.Disabled = true
			continue
		}
		e.nextDue = next
	}

	if due > 0 {
		s.logger.Info("scheduler tick completed",
			"due", due,
			"runs_started", started,
		)
	}

	return started
}

// processEntry запускает одно расписание. Возвращает true, если run начат.
func (s *Scheduler) processEntry(ctx context.Context, e *entry, now time.Time) bool {
	runID, err := s.starter.Start(ctx, e.sched.Controller, e.plan)
	switch {
	case errors.Is(err, orchestrator.ErrAlreadyRunning):
		s.logger.Warn("controller busy, schedule skipped",
			"schedule", e.sched.Name,
			"controller_id", e.sched.Controller,
		)
		e.lastError = err.Error()
		return false
	case err != nil:
		s.logger.Error("failed to start scheduled plan",
			"schedule", e.sched.Name,
			"controller_id", e.sched.Controller,
			"error", err,
		)
		e.lastError = err.Error()
		return false
	}

	s.logger.Info("started plan from schedule",
		"schedule", e.sched.Name,
		"controller_id", e.sched.Controller,
		"run_id", runID,
	)

	at := now
	e.lastRunAt = &at
	e.lastRunID = &runID
	e.lastError = ""
	return true
}

// Entries возвращает состояние расписаний, отсортированное по имени.
func (s *Scheduler) Entries() []EntryStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]EntryStatus, 0, len(s.entries))
	for _, e := range s.entries {
		st := EntryStatus{
			Name:        e.sched.Name,
			Controller:  e.sched.Controller,
			Cron:        e.sched.Cron,
			IntervalSec: e.sched.IntervalSec,
			Disabled:    e.sched.Disabled,
			LastRunAt:   e.lastRunAt,
			LastRunID:   e.lastRunID,
			LastError:   e.lastError,
		}
		if !e.sched.Disabled {
			next := e.nextDue
			st.NextDueAt = &next
		}
		result = append(result, st)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}
