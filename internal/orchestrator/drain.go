package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/shaiso/groupexec/internal/telemetry"
)

// Значения по умолчанию для ожидания очереди.
const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultDrainGrace   = 100 * time.Millisecond
)

// drainer ждёт, пока удалённая очередь опустеет.
//
// Очередь сообщает только общую глубину, поэтому условие —
// running == 0 и pending == 0 одновременно. После этого выдерживается
// короткая пауза grace на задержку отчёта очереди.
type drainer struct {
	queue    QueueClient
	clock    clockwork.Clock
	interval time.Duration
	grace    time.Duration
}

// wait опрашивает очередь с фиксированным интервалом.
//
// Ошибки опроса логируются, опрос продолжается. Возвращает true, если
// очередь опустела, и false, если ожидание прервано через done.
func (d *drainer) wait(ctx context.Context, done <-chan struct{}, logger *slog.Logger) bool {
	start := d.clock.Now()
	defer func() {
		telemetry.DrainWaitSeconds.Observe(d.clock.Now().Sub(start).Seconds())
	}()

	polls := 0
	for {
		select {
		case <-done:
			return false
		default:
		}

		polls++
		status, err := d.queue.Status(ctx)
		switch {
		case err != nil:
			telemetry.PollErrorsTotal.Inc()
			logger.Warn("queue status poll failed", "error", err, "poll", polls)
		case status.IsDrained():
			logger.Debug("queue drained", "polls", polls)
			return d.sleep(d.grace, done)
		default:
			logger.Debug("queue busy",
				"running", status.Running,
				"pending", status.Pending,
			)
		}

		if !d.sleep(d.interval, done) {
			return false
		}
	}
}

// sleep ждёт d или отмену. Возвращает false при отмене.
func (d *drainer) sleep(dur time.Duration, done <-chan struct{}) bool {
	if dur <= 0 {
		return true
	}
	timer := d.clock.NewTimer(dur)
	defer timer.Stop()

	select {
	case <-timer.Chan():
		return true
	case <-done:
		return false
	}
}
