package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/shaiso/groupexec/internal/domain"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- fakeQueue ---

type fakeQueue struct {
	mu sync.Mutex

	clock *clockwork.FakeClock

	busy       bool // очередь никогда не пустеет
	busyPolls  int  // первые N опросов — очередь занята
	statusErrs int  // первые N опросов — ошибка
	submitErr  error
	interErr   error

	events      []string
	submitted   []string
	submitTimes []time.Time
	statusCalls int
	interrupts  int

	polled chan struct{}
}

func newFakeQueue(clk *clockwork.FakeClock) *fakeQueue {
	return &fakeQueue{clock: clk, polled: make(chan struct{}, 1024)}
}

func (q *fakeQueue) Status(ctx context.Context) (domain.QueueStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.statusCalls++
	q.events = append(q.events, "status")
	select {
	case q.polled <- struct{}{}:
	default:
	}

	if q.statusErrs > 0 {
		q.statusErrs--
		return domain.QueueStatus{}, errors.New("connection refused")
	}
	if q.busy {
		return domain.QueueStatus{Running: 1, Pending: 2}, nil
	}
	if q.busyPolls > 0 {
		q.busyPolls--
		return domain.QueueStatus{Running: 1}, nil
	}
	return domain.QueueStatus{}, nil
}

func (q *fakeQueue) SubmitOne(ctx context.Context, job domain.JobHandle) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.submitErr != nil {
		return q.submitErr
	}
	q.events = append(q.events, "submit:"+job.ID)
	q.submitted = append(q.submitted, job.ID)
	if q.clock != nil {
		q.submitTimes = append(q.submitTimes, q.clock.Now())
	}
	return nil
}

func (q *fakeQueue) Interrupt(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.interrupts++
	return q.interErr
}

func (q *fakeQueue) Submitted() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.submitted...)
}

func (q *fakeQueue) Events() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.events...)
}

func (q *fakeQueue) Interrupts() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.interrupts
}

func (q *fakeQueue) StatusCalls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statusCalls
}

func (q *fakeQueue) SetBusy(busy bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.busy = busy
}

// --- fakeBatch ---

type fakeBatch struct {
	mu    sync.Mutex
	err   error
	calls [][]domain.JobHandle
}

func (b *fakeBatch) SubmitBatch(ctx context.Context, jobs []domain.JobHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, jobs)
	return b.err
}

func (b *fakeBatch) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

// --- fakeResolver ---

type fakeResolver struct {
	groups map[string][]domain.JobHandle
	err    error
}

func jobsFor(group string, ids ...string) []domain.JobHandle {
	jobs := make([]domain.JobHandle, len(ids))
	for i, id := range ids {
		jobs[i] = domain.JobHandle{ID: id, Group: group}
	}
	return jobs
}

func (r *fakeResolver) Resolve(ctx context.Context, group string) ([]domain.JobHandle, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.groups[group], nil
}

// --- recordingSink ---

type recordingSink struct {
	mu      sync.Mutex
	updates []StatusUpdate
	alerts  []string
	clears  int

	// onReport вызывается вне мьютекса.
	onReport func(StatusUpdate)
}

func (s *recordingSink) Report(u StatusUpdate) {
	s.mu.Lock()
	s.updates = append(s.updates, u)
	hook := s.onReport
	s.mu.Unlock()

	if hook != nil {
		hook(u)
	}
}

func (s *recordingSink) Alert(controllerID, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, message)
}

func (s *recordingSink) Clear(controllerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
}

func (s *recordingSink) Updates() []StatusUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StatusUpdate(nil), s.updates...)
}

func (s *recordingSink) Alerts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.alerts...)
}

func (s *recordingSink) Clears() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}

func (s *recordingSink) HasText(prefix string) bool {
	for _, u := range s.Updates() {
		if strings.HasPrefix(u.Text, prefix) {
			return true
		}
	}
	return false
}

// --- fakeRecorder ---

type fakeRecorder struct {
	mu       sync.Mutex
	started  []domain.Run
	finished []domain.Run

	// finishing/release задерживают RecordFinish, если заданы.
	finishing chan struct{}
	release   chan struct{}
}

func (r *fakeRecorder) RecordStart(ctx context.Context, run *domain.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, *run)
	return nil
}

func (r *fakeRecorder) RecordFinish(ctx context.Context, run *domain.Run) error {
	if r.finishing != nil {
		r.finishing <- struct{}{}
		<-r.release
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, *run)
	return nil
}

// pump двигает фиктивные часы, пока тест не вызовет stop.
func pump(clk *clockwork.FakeClock, step time.Duration) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for {
			select {
			case <-done:
				return
			default:
			}
			clk.Advance(step)
			time.Sleep(100 * time.Microsecond)
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

// blockUntil ждёт, пока на фиктивных часах не появится хотя бы n таймеров.
func blockUntil(t *testing.T, clk *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := clk.BlockUntilContext(ctx, n); err != nil {
		t.Fatalf("timeout waiting for %d timers", n)
	}
}

// waitFor ждёт сигнал из канала не дольше секунды.
func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for %s", what)
	}
}
