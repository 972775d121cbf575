package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/shaiso/groupexec/internal/domain"
	"github.com/shaiso/groupexec/internal/engine"
	"github.com/shaiso/groupexec/internal/telemetry"
)

// Default configuration values.
const (
	DefaultResetDelay       = 2 * time.Second
	defaultInterruptTimeout = 10 * time.Second
)

// Config — конфигурация RunController.
type Config struct {
	// ID — имя контроллера (панели). Обязательно.
	ID string

	// Collaborators
	Queue    QueueClient
	Batch    BatchSubmitter // nil — только последовательная отправка
	Resolver GroupResolver
	Sink     StatusSink    // default: LogSink
	Recorder RunRecorder   // nil — без истории
	Bus      *InterruptBus // nil — собственная шина

	// Timing
	Clock        clockwork.Clock // default: clockwork.NewRealClock()
	PollInterval time.Duration   // интервал опроса очереди (default: 500ms)
	DrainGrace   time.Duration   // пауза после опустошения (default: 100ms)
	ResetDelay   time.Duration   // сброс статуса после завершения (default: 2s, < 0 — не сбрасывать)

	// Logger
	Logger *slog.Logger
}

// activeRun — состояние выполняющегося run.
type activeRun struct {
	id    uuid.UUID
	plan  domain.ExecutionPlan
	token *cancelToken

	// interruptSent — interrupt уже отправлен (нами или соседом).
	// Меняется под RunController.mu вместе с token.
	interruptSent atomic.Bool

	// Защищены RunController.mu.
	current int
	total   int
	record  *domain.Run

	// finished — финальный статус уже определён, отмена больше
	// ни на что не влияет. Защищён RunController.mu.
	finished bool

	// cancelling — отмены, чьи interrupt и отчёты ещё не завершены.
	// Add только под mu и только пока !finished; finish ждёт их до
	// финального отчёта.
	cancelling sync.WaitGroup
}

// Result — итог run.
type Result struct {
	RunID       uuid.UUID        `json:"run_id"`
	Status      domain.RunStatus `json:"status"`
	CurrentStep int              `json:"current_step"`
	TotalSteps  int              `json:"total_steps"`
	Err         error            `json:"-"`
}

// Snapshot — состояние контроллера только для чтения.
type Snapshot struct {
	ControllerID string                 `json:"controller_id"`
	State        domain.ControllerState `json:"state"`
	RunID        *uuid.UUID             `json:"run_id,omitempty"`
	Executing    bool                   `json:"executing"`
	Cancelling   bool                   `json:"cancelling"`
	CurrentStep  int                    `json:"current_step"`
	TotalSteps   int                    `json:"total_steps"`
	Percent      int                    `json:"percent"`
	LastRunID    *uuid.UUID             `json:"last_run_id,omitempty"`
	LastStatus   domain.RunStatus       `json:"last_status,omitempty"`
	LastError    string                 `json:"last_error,omitempty"`
}

// RunController выполняет план групп на удалённой очереди.
//
// Одновременно выполняется не больше одного run. Повторный запуск
// во время выполнения — предупреждение без изменения состояния.
// Отмена наблюдается в каждой точке ожидания: перед шагом, перед
// повтором, перед отправкой, во время ожидания очереди и задержек.
type RunController struct {
	id       string
	queue    QueueClient
	resolver GroupResolver
	sink     StatusSink
	recorder RunRecorder
	bus      *InterruptBus
	clock    clockwork.Clock
	submit   submitter

	resetDelay time.Duration
	logger     *slog.Logger

	// executing — флаг выполнения. Сбрасывается последним при очистке.
	executing atomic.Bool

	mu         sync.Mutex
	run        *activeRun
	last       *Result
	lastErr    string
	resetTimer clockwork.Timer
	closed     bool

	sub        *Subscription
	listenDone chan struct{}
	wg         sync.WaitGroup
}

// New создаёт RunController и подписывает его на шину прерываний.
func New(cfg Config) *RunController {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = telemetry.WithControllerID(logger, cfg.ID)

	clk := cfg.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	grace := cfg.DrainGrace
	if grace < 0 {
		grace = 0
	} else if grace == 0 {
		grace = DefaultDrainGrace
	}

	resetDelay := cfg.ResetDelay
	if resetDelay == 0 {
		resetDelay = DefaultResetDelay
	}

	sink := cfg.Sink
	if sink == nil {
		sink = NewLogSink(logger)
	}

	bus := cfg.Bus
	if bus == nil {
		bus = NewInterruptBus(logger)
	}

	d := &drainer{
		queue:    cfg.Queue,
		clock:    clk,
		interval: pollInterval,
		grace:    grace,
	}
	sequential := &sequentialSubmitter{queue: cfg.Queue, drainer: d}

	var sub submitter = sequential
	if cfg.Batch != nil {
		sub = &bulkSubmitter{batch: cfg.Batch, drainer: d, fallback: sequential}
	}

	c := &RunController{
		id:         cfg.ID,
		queue:      cfg.Queue,
		resolver:   cfg.Resolver,
		sink:       sink,
		recorder:   cfg.Recorder,
		bus:        bus,
		clock:      clk,
		submit:     sub,
		resetDelay: resetDelay,
		logger:     logger,
		listenDone: make(chan struct{}),
	}

	c.sub = bus.Subscribe(cfg.ID)
	go c.listen()

	logger.Debug("controller created", "submit_mode", sub.mode())
	return c
}

// ID возвращает имя контроллера.
func (c *RunController) ID() string {
	return c.id
}

// IsExecuting возвращает true, пока выполняется run.
func (c *RunController) IsExecuting() bool {
	return c.executing.Load()
}

// Run выполняет план и блокируется до завершения.
//
// Если контроллер уже выполняет план, возвращает ErrAlreadyRunning
// сразу, ничего не меняя. Ошибка шага возвращается вместе с Result
// (Status = FAILED). Отмена ctx завершает run как CANCELLED.
func (c *RunController) Run(ctx context.Context, plan domain.ExecutionPlan) (Result, error) {
	run, err := c.begin(plan)
	if err != nil {
		return Result{}, err
	}

	res := c.execute(ctx, run)
	return res, res.Err
}

// Start запускает план в фоне и возвращает ID run.
//
// ctx задаёт время жизни run, а не запроса: вызывающий код передаёт
// долгоживущий контекст. Завершения ждёт Wait.
func (c *RunController) Start(ctx context.Context, plan domain.ExecutionPlan) (uuid.UUID, error) {
	run, err := c.begin(plan)
	if err != nil {
		return uuid.Nil, err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.execute(ctx, run)
	}()

	return run.id, nil
}

// Wait ждёт завершения runs, запущенных через Start.
func (c *RunController) Wait() {
	c.wg.Wait()
}

// Cancel запрашивает отмену текущего run.
//
// Флаг ставится синхронно, статус «Cancelling...» публикуется до
// ответа очереди, interrupt отправляется ровно один раз, затем
// событие рассылается соседним контроллерам. Ошибка interrupt
// только логируется. Run, чей финальный статус уже определён,
// отменить нельзя: ErrNotRunning.
func (c *RunController) Cancel(ctx context.Context) error {
	c.mu.Lock()
	run := c.run
	if run == nil {
		c.mu.Unlock()
		c.logger.Warn("cancel requested, but no run in progress")
		return ErrNotRunning
	}
	if run.token.Cancelled() {
		c.mu.Unlock()
		c.logger.Warn("cancel already requested", "run_id", run.id)
		return ErrAlreadyCancelling
	}
	if run.finished {
		c.mu.Unlock()
		c.logger.Warn("cancel requested, but run is already finishing", "run_id", run.id)
		return ErrNotRunning
	}
	run.token.Cancel()
	run.interruptSent.Store(true)
	run.cancelling.Add(1)
	defer run.cancelling.Done()
	percent := progressPercent(run.current, run.total)
	c.mu.Unlock()

	logger := telemetry.WithRunID(c.logger, run.id.String())
	logger.Info("cancelling run")
	c.report(run.id, "Cancelling...", percent)

	telemetry.InterruptsTotal.WithLabelValues("local").Inc()
	if err := c.queue.Interrupt(ctx); err != nil {
		logger.Error("failed to interrupt queue", "error", err)
		c.report(run.id, fmt.Sprintf("Cancel failed: %v", err), percent)
	}

	c.bus.Publish(InterruptEvent{
		Source: c.id,
		RunID:  run.id,
		Reason: "cancelled",
		At:     c.clock.Now(),
	})

	return nil
}

// Snapshot возвращает текущее состояние контроллера.
func (c *RunController) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		ControllerID: c.id,
		State:        domain.ControllerStateIdle,
		Executing:    c.executing.Load(),
	}

	if run := c.run; run != nil {
		id := run.id
		s.State = domain.ControllerStateRunning
		s.RunID = &id
		s.Cancelling = run.token.Cancelled()
		s.CurrentStep = run.current
		s.TotalSteps = run.total
		s.Percent = progressPercent(run.current, run.total)
	}

	if c.last != nil {
		id := c.last.RunID
		s.LastRunID = &id
		s.LastStatus = c.last.Status
		s.LastError = c.lastErr
	}

	return s
}

// Close отписывает контроллер от шины, отменяет текущий run
// и ждёт runs, запущенных через Start. Повторный вызов безопасен.
func (c *RunController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.resetTimer != nil {
		c.resetTimer.Stop()
	}
	run := c.run
	if run != nil && run.finished {
		run = nil
	}
	c.mu.Unlock()

	if run != nil && run.token.Cancel() {
		c.logger.Info("controller closing, cancelling run", "run_id", run.id)
	}

	c.wg.Wait()

	c.bus.Unsubscribe(c.sub)
	<-c.listenDone

	c.logger.Debug("controller closed")
}

// begin переводит контроллер Idle → Running.
func (c *RunController) begin(plan domain.ExecutionPlan) (*activeRun, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrControllerClosed
	}

	if !c.executing.CompareAndSwap(false, true) {
		c.logger.Warn("run already in progress, ignoring start request")
		return nil, ErrAlreadyRunning
	}

	normalized, issues := engine.Normalize(plan)
	for _, issue := range issues {
		c.logger.Warn("plan step adjusted", "issue", issue.String())
	}

	now := c.clock.Now()
	run := &activeRun{
		id:    uuid.New(),
		plan:  normalized,
		token: newCancelToken(),
		total: normalized.TotalUnits(),
	}
	run.record = &domain.Run{
		ID:           run.id,
		ControllerID: c.id,
		Plan:         normalized,
		TotalSteps:   run.total,
		CreatedAt:    now,
	}
	run.record.MarkRunning(now)

	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	c.run = run

	return run, nil
}

// execute выполняет план и всегда выполняет очистку.
func (c *RunController) execute(ctx context.Context, run *activeRun) Result {
	logger := telemetry.WithRunID(c.logger, run.id.String())

	telemetry.ActiveRuns.Inc()
	defer telemetry.ActiveRuns.Dec()

	// Отмена контекста (shutdown) — та же отмена, что и от пользователя.
	stop := context.AfterFunc(ctx, func() {
		if run.token.Cancel() {
			logger.Info("run context done, cancelling")
		}
	})
	defer stop()

	logger.Info("run started",
		"steps", len(run.plan),
		"total_units", run.total,
		"submit_mode", c.submit.mode(),
	)
	c.recordStart(ctx, run, logger)
	c.report(run.id, "Starting...", 0)

	var err error
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("run panicked: %v", p)
			}
		}()
		err = c.executePlan(ctx, run, logger)
	}()

	if ctx.Err() != nil {
		run.token.Cancel()
	}

	return c.finish(ctx, run, err, logger)
}

// executePlan проходит по шагам плана.
func (c *RunController) executePlan(ctx context.Context, run *activeRun, logger *slog.Logger) error {
	for i, step := range run.plan {
		if run.token.Cancelled() {
			return nil
		}

		if step.IsDelay() {
			if d := step.Delay(); d > 0 {
				logger.Debug("delay step", "index", i, "delay", d)
				c.report(run.id, fmt.Sprintf("Waiting %.1fs...", step.DelaySeconds), c.percent(run))
				c.sleep(run, d)
			}
			continue
		}

		stepLogger := telemetry.WithGroup(logger, step.GroupName)

		for r := 0; r < step.RepeatCount; r++ {
			if run.token.Cancelled() {
				return nil
			}

			if err := c.executeUnit(ctx, run, step, stepLogger); err != nil {
				return err
			}
			if run.token.Cancelled() {
				return nil
			}

			current, total := c.advance(run)
			telemetry.UnitsTotal.Inc()
			c.report(run.id, fmt.Sprintf("Completed %s (%d/%d)", step.GroupName, current, total),
				progressPercent(current, total))

			if d := step.Delay(); d > 0 && current < total && !run.token.Cancelled() {
				c.report(run.id, fmt.Sprintf("Waiting %.1fs...", step.DelaySeconds), progressPercent(current, total))
				c.sleep(run, d)
			}
		}
	}
	return nil
}

// executeUnit выполняет одну итерацию шага: разрешение группы,
// отправка заданий, ожидание очереди.
func (c *RunController) executeUnit(ctx context.Context, run *activeRun, step domain.ExecutionStep, logger *slog.Logger) error {
	c.mu.Lock()
	next, total := run.current+1, run.total
	c.mu.Unlock()

	c.report(run.id, fmt.Sprintf("Executing %s (%d/%d)", step.GroupName, next, total),
		progressPercent(next-1, total))

	jobs, err := c.resolver.Resolve(ctx, step.GroupName)
	if err != nil {
		return &StepError{Group: step.GroupName, Err: err}
	}
	if len(jobs) == 0 {
		return &StepError{Group: step.GroupName, Err: ErrNoJobs}
	}

	if run.token.Cancelled() {
		return nil
	}

	logger.Info("submitting group", "jobs", len(jobs), "unit", next, "total", total)
	if err := c.submit.submit(ctx, run, jobs, logger); err != nil {
		return &StepError{Group: step.GroupName, Err: err}
	}
	return nil
}

// finish определяет финальный статус и выполняет очистку.
func (c *RunController) finish(ctx context.Context, run *activeRun, err error, logger *slog.Logger) Result {
	// Статус фиксируется под mu: после этого Cancel и чужие
	// прерывания run не трогают.
	c.mu.Lock()
	run.finished = true
	var status domain.RunStatus
	switch {
	case run.token.Cancelled():
		status = domain.RunStatusCancelled
	case err != nil:
		status = domain.RunStatusFailed
	default:
		status = domain.RunStatusCompleted
	}

	// Соседи и пользователь уже отправили interrupt; остаётся
	// отмена через ctx или Close.
	needInterrupt := status == domain.RunStatusCancelled && run.interruptSent.CompareAndSwap(false, true)
	c.mu.Unlock()

	// «Cancelling...» и «Cancel failed» не должны прийти после
	// финального статуса.
	run.cancelling.Wait()

	if needInterrupt {
		ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultInterruptTimeout)
		telemetry.InterruptsTotal.WithLabelValues("shutdown").Inc()
		if ierr := c.queue.Interrupt(ictx); ierr != nil {
			logger.Error("failed to interrupt queue", "error", ierr)
		}
		cancel()

		c.bus.Publish(InterruptEvent{
			Source: c.id,
			RunID:  run.id,
			Reason: "shutdown",
			At:     c.clock.Now(),
		})
	}

	now := c.clock.Now()

	c.mu.Lock()
	current, total := run.current, run.total
	switch status {
	case domain.RunStatusCompleted:
		run.record.MarkCompleted(now)
	case domain.RunStatusCancelled:
		run.record.MarkCancelled(now)
	case domain.RunStatusFailed:
		run.record.MarkFailed(now, err.Error())
	}
	run.record.CurrentStep = current
	c.mu.Unlock()

	res := Result{
		RunID:       run.id,
		Status:      status,
		CurrentStep: current,
		TotalSteps:  total,
	}

	switch status {
	case domain.RunStatusCompleted:
		logger.Info("run completed", "units", current)
		c.report(run.id, "Completed", 100)
	case domain.RunStatusCancelled:
		logger.Info("run cancelled", "units", current, "total", total)
		c.report(run.id, "Cancelled", progressPercent(current, total))
	case domain.RunStatusFailed:
		res.Err = err
		logger.Error("run failed", "error", err, "units", current, "total", total)
		c.report(run.id, "Error: "+err.Error(), progressPercent(current, total))
		c.sink.Alert(c.id, err.Error())
	}

	telemetry.RunsTotal.WithLabelValues(string(status)).Inc()
	c.recordFinish(ctx, run, logger)

	// Очистка: флаг executing сбрасывается последним.
	c.mu.Lock()
	c.run = nil
	c.last = &res
	c.lastErr = ""
	if err != nil && status == domain.RunStatusFailed {
		c.lastErr = err.Error()
	}
	if status != domain.RunStatusFailed && c.resetDelay > 0 && !c.closed {
		c.resetTimer = c.clock.AfterFunc(c.resetDelay, c.clearStatus)
	}
	c.executing.Store(false)
	c.mu.Unlock()

	return res
}

// clearStatus сбрасывает статус, если за это время не стартовал новый run.
func (c *RunController) clearStatus() {
	c.mu.Lock()
	if c.run != nil {
		c.mu.Unlock()
		return
	}
	c.resetTimer = nil
	c.mu.Unlock()

	c.sink.Clear(c.id)
}

// listen обрабатывает прерывания от соседних контроллеров.
func (c *RunController) listen() {
	defer close(c.listenDone)
	for ev := range c.sub.C {
		c.handleInterrupt(ev)
	}
}

// handleInterrupt принимает чужое прерывание как собственную отмену.
// Interrupt в очередь уже отправлен источником, повторно не шлём.
func (c *RunController) handleInterrupt(ev InterruptEvent) {
	c.mu.Lock()
	run := c.run
	if run == nil || run.finished {
		c.mu.Unlock()
		c.logger.Debug("interrupt received while idle", "source", ev.Source)
		return
	}
	run.interruptSent.Store(true)
	cancelled := run.token.Cancel()
	if !cancelled {
		c.mu.Unlock()
		return
	}
	run.cancelling.Add(1)
	defer run.cancelling.Done()
	percent := progressPercent(run.current, run.total)
	c.mu.Unlock()

	origin := "peer"
	if ev.Remote {
		origin = "remote"
	}
	telemetry.InterruptsTotal.WithLabelValues(origin).Inc()

	c.logger.Info("run cancelled by interrupt",
		"run_id", run.id,
		"source", ev.Source,
		"origin", origin,
	)
	c.report(run.id, "Cancelling...", percent)
}

// advance увеличивает счётчик прогресса.
func (c *RunController) advance(run *activeRun) (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if run.current < run.total {
		run.current++
	}
	return run.current, run.total
}

func (c *RunController) percent(run *activeRun) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return progressPercent(run.current, run.total)
}

// sleep ждёт d или отмену run.
func (c *RunController) sleep(run *activeRun, d time.Duration) {
	timer := c.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.Chan():
	case <-run.token.Done():
	}
}

func (c *RunController) report(runID uuid.UUID, text string, percent int) {
	c.sink.Report(StatusUpdate{
		ControllerID: c.id,
		RunID:        runID,
		Text:         text,
		Percent:      percent,
		At:           c.clock.Now(),
	})
}

func (c *RunController) recordStart(ctx context.Context, run *activeRun, logger *slog.Logger) {
	if c.recorder == nil {
		return
	}
	c.mu.Lock()
	record := *run.record
	c.mu.Unlock()

	if err := c.recorder.RecordStart(ctx, &record); err != nil {
		logger.Warn("failed to record run start", "error", err)
	}
}

func (c *RunController) recordFinish(ctx context.Context, run *activeRun, logger *slog.Logger) {
	if c.recorder == nil {
		return
	}
	c.mu.Lock()
	record := *run.record
	c.mu.Unlock()

	if err := c.recorder.RecordFinish(context.WithoutCancel(ctx), &record); err != nil {
		logger.Warn("failed to record run finish", "error", err)
	}
}

// progressPercent возвращает процент в диапазоне [0, 100].
func progressPercent(current, total int) int {
	if total <= 0 {
		return 0
	}
	p := current * 100 / total
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
