package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/groupexec/internal/domain"
	"github.com/shaiso/groupexec/internal/mq"
	"github.com/shaiso/groupexec/internal/orchestrator"
	"github.com/shaiso/groupexec/internal/repo"
	"github.com/shaiso/groupexec/internal/scheduler"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- fakes ---

type fakeQueue struct {
	mu        sync.Mutex
	busy      bool
	submitted []string
}

func (q *fakeQueue) Status(ctx context.Context) (domain.QueueStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.busy {
		return domain.QueueStatus{Running: 1}, nil
	}
	return domain.QueueStatus{}, nil
}

func (q *fakeQueue) SubmitOne(ctx context.Context, job domain.JobHandle) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.submitted = append(q.submitted, job.ID)
	return nil
}

func (q *fakeQueue) Interrupt(ctx context.Context) error { return nil }

type mapResolver map[string][]string

func (m mapResolver) Resolve(ctx context.Context, group string) ([]domain.JobHandle, error) {
	var jobs []domain.JobHandle
	for _, id := range m[group] {
		jobs = append(jobs, domain.JobHandle{ID: id, Group: group})
	}
	return jobs, nil
}

func (m mapResolver) Groups() []string { return []string{"A", "B"} }

type fakeRunStore struct {
	runs   map[uuid.UUID]domain.Run
	filter repo.RunFilter
}

func (s *fakeRunStore) List(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	s.filter = filter
	var result []domain.Run
	for _, r := range s.runs {
		result = append(result, r)
	}
	return result, nil
}

func (s *fakeRunStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	r, ok := s.runs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &r, nil
}

type fakePublisher struct {
	payloads []mq.PlanPayload
}

func (p *fakePublisher) PublishPlan(ctx context.Context, payload mq.PlanPayload) error {
	p.payloads = append(p.payloads, payload)
	return nil
}

type fakeSchedules struct{}

func (fakeSchedules) Entries() []scheduler.EntryStatus {
	return []scheduler.EntryStatus{{Name: "nightly", Controller: "panel-1", Cron: "0 3 * * *"}}
}

// --- harness ---

type testServer struct {
	host  *orchestrator.Host
	queue *fakeQueue
	board *orchestrator.StatusBoard
	mux   *http.ServeMux
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()

	queue := &fakeQueue{}
	board := orchestrator.NewStatusBoard()
	host := orchestrator.NewHost(orchestrator.Config{
		Queue:        queue,
		Resolver:     mapResolver{"A": {"1", "2"}, "B": {"3"}},
		Sink:         board,
		PollInterval: time.Millisecond,
		DrainGrace:   -1,
		ResetDelay:   -1,
		Logger:       testLogger(),
	})
	t.Cleanup(host.Close)

	cfg.Host = host
	cfg.Board = board
	cfg.Logger = testLogger()

	mux := http.NewServeMux()
	NewHandler(cfg).RegisterRoutes(mux)

	return &testServer{host: host, queue: queue, board: board, mux: mux}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return resp.Error
}

func waitIdle(t *testing.T, s *testServer, id string) {
	t.Helper()
	c, ok := s.host.Get(id)
	if !ok {
		t.Fatalf("controller %s not registered", id)
	}
	c.Wait()
}

// --- tests ---

func TestStartRun(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := s.do(http.MethodPost, "/api/v1/controllers/panel-1/runs", StartRunRequest{
		Plan:  domain.ExecutionPlan{{GroupName: "A", RepeatCount: 1}},
		Steps: []string{"B:2"},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeData[StartRunResponse](t, rec)
	if resp.RunID == nil || resp.ControllerID != "panel-1" || resp.TotalSteps != 3 {
		t.Errorf("unexpected response: %+v", resp)
	}

	waitIdle(t, s, "panel-1")

	s.queue.mu.Lock()
	submitted := append([]string(nil), s.queue.submitted...)
	s.queue.mu.Unlock()
	if len(submitted) != 4 {
		t.Errorf("expected 4 submissions (A:1,2 then B twice), got %v", submitted)
	}

	rec = s.do(http.MethodGet, "/api/v1/controllers/panel-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	ctrl := decodeData[ControllerResponse](t, rec)
	if ctrl.LastStatus != domain.RunStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", ctrl.LastStatus)
	}
	if ctrl.Status == nil || ctrl.Status.Text != "Completed" || ctrl.Status.Percent != 100 {
		t.Errorf("unexpected status line: %+v", ctrl.Status)
	}
}

func TestStartRun_TotalMatchesNormalizedPlan(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := s.do(http.MethodPost, "/api/v1/controllers/panel-1/runs", StartRunRequest{
		Plan: domain.ExecutionPlan{
			{GroupName: "", RepeatCount: 3},
			{GroupName: "B", RepeatCount: 0},
		},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeData[StartRunResponse](t, rec)
	if resp.TotalSteps != 1 {
		t.Errorf("expected 1 unit after normalization, got %d", resp.TotalSteps)
	}

	waitIdle(t, s, "panel-1")

	s.queue.mu.Lock()
	submitted := len(s.queue.submitted)
	s.queue.mu.Unlock()
	if submitted != resp.TotalSteps {
		t.Errorf("response total %d differs from executed units %d", resp.TotalSteps, submitted)
	}
}

func TestStartRun_UnknownControllerOnSealedHost(t *testing.T) {
	s := newTestServer(t, Config{})
	if _, err := s.host.Controller("panel-1"); err != nil {
		t.Fatalf("register controller: %v", err)
	}
	s.host.Seal()

	rec := s.do(http.MethodPost, "/api/v1/controllers/ghost/runs", StartRunRequest{Steps: []string{"A"}})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, ok := s.host.Get("ghost"); ok {
		t.Error("sealed host must not create controllers")
	}
}

func TestStartRun_AlreadyRunning(t *testing.T) {
	s := newTestServer(t, Config{})
	s.queue.busy = true

	body := StartRunRequest{Steps: []string{"A"}}
	if rec := s.do(http.MethodPost, "/api/v1/controllers/panel-1/runs", body); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	rec := s.do(http.MethodPost, "/api/v1/controllers/panel-1/runs", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != ErrCodeAlreadyRunning {
		t.Errorf("expected ALREADY_RUNNING, got %s", e.Code)
	}

	// Отмена освобождает контроллер
	rec = s.do(http.MethodPost, "/api/v1/controllers/panel-1/cancel", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 on cancel, got %d: %s", rec.Code, rec.Body.String())
	}
	waitIdle(t, s, "panel-1")

	c, _ := s.host.Get("panel-1")
	if got := c.Snapshot().LastStatus; got != domain.RunStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", got)
	}
}

func TestStartRun_BadRequest(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := s.do(http.MethodPost, "/api/v1/controllers/panel-1/runs", StartRunRequest{Steps: []string{"delay:soon"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad step, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/controllers/panel-1/runs", bytes.NewBufferString("{"))
	out := httptest.NewRecorder()
	s.mux.ServeHTTP(out, req)
	if out.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad json, got %d", out.Code)
	}
}

func TestStartRun_Queued(t *testing.T) {
	pub := &fakePublisher{}
	s := newTestServer(t, Config{Publisher: pub})

	rec := s.do(http.MethodPost, "/api/v1/controllers/panel-2/runs", StartRunRequest{
		Steps:      []string{"A"},
		Repeat:     2,
		GroupDelay: 1,
		Queued:     true,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	resp := decodeData[StartRunResponse](t, rec)
	if !resp.Queued || resp.RunID != nil {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(pub.payloads) != 1 || pub.payloads[0].ControllerID != "panel-2" {
		t.Fatalf("unexpected payloads: %+v", pub.payloads)
	}
	// A, delay, A
	if len(pub.payloads[0].Plan) != 3 {
		t.Errorf("expected repeated plan, got %+v", pub.payloads[0].Plan)
	}
	if _, ok := s.host.Get("panel-2"); ok {
		t.Error("queued plan must not start locally")
	}
}

func TestStartRun_QueuedWithoutPublisher(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := s.do(http.MethodPost, "/api/v1/controllers/panel-1/runs", StartRunRequest{Queued: true})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}
}

func TestCancelRun_Errors(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := s.do(http.MethodPost, "/api/v1/controllers/missing/cancel", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown controller, got %d", rec.Code)
	}

	if _, err := s.host.Controller("idle"); err != nil {
		t.Fatalf("register controller: %v", err)
	}
	rec = s.do(http.MethodPost, "/api/v1/controllers/idle/cancel", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for idle controller, got %d", rec.Code)
	}
}

func TestListControllers(t *testing.T) {
	s := newTestServer(t, Config{})
	for _, id := range []string{"b", "a"} {
		if _, err := s.host.Controller(id); err != nil {
			t.Fatalf("register controller: %v", err)
		}
	}

	rec := s.do(http.MethodGet, "/api/v1/controllers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	list := decodeData[[]ControllerResponse](t, rec)
	if len(list) != 2 || list[0].ControllerID != "a" || list[0].State != domain.ControllerStateIdle {
		t.Errorf("unexpected list: %+v", list)
	}

	if rec := s.do(http.MethodGet, "/api/v1/controllers/nope", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRuns_HistoryDisabled(t *testing.T) {
	s := newTestServer(t, Config{})

	if rec := s.do(http.MethodGet, "/api/v1/runs", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/api/v1/runs/"+uuid.NewString(), nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRuns_History(t *testing.T) {
	id := uuid.New()
	store := &fakeRunStore{runs: map[uuid.UUID]domain.Run{
		id: {ID: id, ControllerID: "panel-1", Status: domain.RunStatusCompleted, CurrentStep: 2, TotalSteps: 2},
	}}
	s := newTestServer(t, Config{Runs: store})

	rec := s.do(http.MethodGet, "/api/v1/runs?controller_id=panel-1&status=COMPLETED&limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	runs := decodeData[[]RunResponse](t, rec)
	if len(runs) != 1 || runs[0].ID != id {
		t.Errorf("unexpected runs: %+v", runs)
	}
	if store.filter.ControllerID != "panel-1" || store.filter.Status != domain.RunStatusCompleted || store.filter.Limit != 10 {
		t.Errorf("unexpected filter: %+v", store.filter)
	}

	rec = s.do(http.MethodGet, "/api/v1/runs/"+id.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if run := decodeData[RunResponse](t, rec); run.Status != "COMPLETED" {
		t.Errorf("unexpected run: %+v", run)
	}

	tests := []struct {
		path string
		code int
	}{
		{"/api/v1/runs/" + uuid.NewString(), http.StatusNotFound},
		{"/api/v1/runs/not-a-uuid", http.StatusBadRequest},
		{"/api/v1/runs?status=DONE", http.StatusBadRequest},
		{"/api/v1/runs?limit=-1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if rec := s.do(http.MethodGet, tt.path, nil); rec.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, rec.Code)
			}
		})
	}
}

func TestListSchedulesAndGroups(t *testing.T) {
	s := newTestServer(t, Config{Schedules: fakeSchedules{}, Groups: mapResolver{}})

	rec := s.do(http.MethodGet, "/api/v1/schedules", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if entries := decodeData[[]scheduler.EntryStatus](t, rec); len(entries) != 1 || entries[0].Name != "nightly" {
		t.Errorf("unexpected schedules: %+v", entries)
	}

	rec = s.do(http.MethodGet, "/api/v1/groups", nil)
	if groups := decodeData[[]string](t, rec); len(groups) != 2 {
		t.Errorf("unexpected groups: %v", groups)
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
