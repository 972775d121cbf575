package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/shaiso/groupexec/internal/config"
	"github.com/shaiso/groupexec/internal/domain"
	"github.com/shaiso/groupexec/internal/orchestrator"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type startCall struct {
	controllerID string
	plan         domain.ExecutionPlan
}

type fakeStarter struct {
	mu      sync.Mutex
	err     error
	calls   []startCall
	started chan struct{}
}

func newFakeStarter() *fakeStarter {
	return &fakeStarter{started: make(chan struct{}, 16)}
}

func (s *fakeStarter) Start(ctx context.Context, controllerID string, plan domain.ExecutionPlan) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, startCall{controllerID, plan})
	s.started <- struct{}{}
	if s.err != nil {
		return uuid.Nil, s.err
	}
	return uuid.New(), nil
}

func (s *fakeStarter) Calls() []startCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]startCall(nil), s.calls...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intervalSchedule(name string, sec int) config.ScheduleConfig {
	return config.ScheduleConfig{
		Name:        name,
		Controller:  "panel-1",
		IntervalSec: sec,
		Plan:        domain.ExecutionPlan{{GroupName: "A", RepeatCount: 1}},
	}
}

func TestTick_StartsDueSchedules(t *testing.T) {
	clk := clockwork.NewFakeClockAt(epoch)
	starter := newFakeStarter()

	s, err := New(Config{
		Schedules: []config.ScheduleConfig{intervalSchedule("every-minute", 60)},
		Starter:   starter,
		Clock:     clk,
		Logger:    testLogger(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := s.Tick(context.Background(), epoch.Add(30*time.Second)); n != 0 {
		t.Errorf("expected nothing due at +30s, started %d", n)
	}
	if n := s.Tick(context.Background(), epoch.Add(60*time.Second)); n != 1 {
		t.Errorf("expected 1 start at +60s, got %d", n)
	}
	// Следующее время — +120s
	if n := s.Tick(context.Background(), epoch.Add(90*time.Second)); n != 0 {
		t.Errorf("expected nothing due at +90s, started %d", n)
	}

	calls := starter.Calls()
	if len(calls) != 1 || calls[0].controllerID != "panel-1" {
		t.Errorf("unexpected calls: %+v", calls)
	}

	entries := s.Entries()
	if len(entries) != 1 || entries[0].LastRunID == nil {
		t.Fatalf("expected last run recorded, got %+v", entries)
	}
	if want := epoch.Add(120 * time.Second); !entries[0].NextDueAt.Equal(want) {
		t.Errorf("expected next due %v, got %v", want, entries[0].NextDueAt)
	}
}

func TestTick_AppliesRepeat(t *testing.T) {
	starter := newFakeStarter()
	sc := intervalSchedule("repeat", 10)
	sc.Repeat = 3
	sc.GroupDelay = 2

	s, err := New(Config{
		Schedules: []config.ScheduleConfig{sc},
		Starter:   starter,
		Clock:     clockwork.NewFakeClockAt(epoch),
		Logger:    testLogger(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Tick(context.Background(), epoch.Add(10*time.Second))

	calls := starter.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	// A, delay, A, delay, A
	if len(calls[0].plan) != 5 {
		t.Errorf("expected repeated plan of 5 steps, got %+v", calls[0].plan)
	}
}

func TestTick_BusyControllerSkipped(t *testing.T) {
	starter := newFakeStarter()
	starter.err = orchestrator.ErrAlreadyRunning

	s, err := New(Config{
		Schedules: []config.ScheduleConfig{intervalSchedule("busy", 10)},
		Starter:   starter,
		Clock:     clockwork.NewFakeClockAt(epoch),
		Logger:    testLogger(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := s.Tick(context.Background(), epoch.Add(10*time.Second)); n != 0 {
		t.Errorf("expected 0 started, got %d", n)
	}

	entries := s.Entries()
	if entries[0].LastError == "" {
		t.Error("expected last error recorded")
	}
	// Пропуск не повторяется до следующего времени
	if want := epoch.Add(20 * time.Second); !entries[0].NextDueAt.Equal(want) {
		t.Errorf("expected next due %v, got %v", want, entries[0].NextDueAt)
	}
}

func TestTick_DisabledSchedule(t *testing.T) {
	starter := newFakeStarter()
	sc := intervalSchedule("off", 10)
	sc.Disabled = true

	s, err := New(Config{
		Schedules: []config.ScheduleConfig{sc},
		Starter:   starter,
		Clock:     clockwork.NewFakeClockAt(epoch),
		Logger:    testLogger(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Tick(context.Background(), epoch.Add(time.Hour))
	if len(starter.Calls()) != 0 {
		t.Error("disabled schedule must not start")
	}
	if s.Entries()[0].NextDueAt != nil {
		t.Error("disabled schedule has no next due time")
	}
}

func TestNew_InvalidCron(t *testing.T) {
	sc := intervalSchedule("bad", 0)
	sc.Cron = "every day"

	_, err := New(Config{
		Schedules: []config.ScheduleConfig{sc},
		Starter:   newFakeStarter(),
		Logger:    testLogger(),
	})
	if err == nil {
		t.Error("expected error for invalid cron")
	}
}

func TestRun_TicksWithClock(t *testing.T) {
	clk := clockwork.NewFakeClockAt(epoch)
	starter := newFakeStarter()

	s, err := New(Config{
		Schedules: []config.ScheduleConfig{intervalSchedule("fast", 1)},
		Starter:   starter,
		Clock:     clk,
		Interval:  time.Second,
		Logger:    testLogger(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	if err := clk.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatal("scheduler ticker not registered")
	}
	clk.Advance(time.Second)

	select {
	case <-starter.started:
	case <-time.After(time.Second):
		t.Fatal("scheduled plan not started")
	}

	cancel()
	<-done
}

func TestCalculateNextDue(t *testing.T) {
	from := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		sched config.ScheduleConfig
		want  time.Time
	}{
		{
			name:  "interval",
			sched: config.ScheduleConfig{IntervalSec: 90},
			want:  from.Add(90 * time.Second),
		},
		{
			name:  "cron hourly",
			sched: config.ScheduleConfig{Cron: "0 * * * *"},
			want:  time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		},
		{
			name:  "cron with timezone",
			sched: config.ScheduleConfig{Cron: "0 15 * * *", Timezone: "Europe/Moscow"},
			want:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name:  "cron wins over interval",
			sched: config.ScheduleConfig{Cron: "0 * * * *", IntervalSec: 5},
			want:  time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateNextDue(tt.sched, from)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("CalculateNextDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateNextDue_NoTrigger(t *testing.T) {
	if _, err := CalculateNextDue(config.ScheduleConfig{Name: "x"}, epoch); err == nil {
		t.Error("expected error for schedule without trigger")
	}
}

func TestValidateCronExpr(t *testing.T) {
	if err := ValidateCronExpr("*/5 * * * *"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateCronExpr("* * *"); err == nil {
		t.Error("expected error for short expression")
	}
}
