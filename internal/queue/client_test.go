package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shaiso/groupexec/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(url string) *Client {
	return NewClient(Config{BaseURL: url + "/", ClientID: "test-client", Logger: testLogger()})
}

func TestClient_Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/queue" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"queue_running": [[0, "p1", {}]], "queue_pending": [[1, "p2", {}], [2, "p3", {}]]}`))
	}))
	defer server.Close()

	status, err := newTestClient(server.URL).Status(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Running != 1 || status.Pending != 2 {
		t.Errorf("unexpected status: %+v", status)
	}
	if status.IsDrained() {
		t.Error("queue with work should not be drained")
	}
}

func TestClient_Status_MissingListsAreEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	status, err := newTestClient(server.URL).Status(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.IsDrained() {
		t.Errorf("expected drained status, got %+v", status)
	}
}

func TestClient_Status_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			wantErr: ErrUnexpectedStatus,
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`not json`))
			},
			wantErr: ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := newTestClient(server.URL).Status(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestClient_Status_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := newTestClient(url).Status(context.Background())
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
}

func TestClient_Submit(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []promptRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/prompt" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req promptRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()
		w.Write([]byte(`{"prompt_id": "abc"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ctx := context.Background()

	if err := client.SubmitOne(ctx, domain.JobHandle{ID: "9", Group: "A"}); err != nil {
		t.Fatalf("SubmitOne: %v", err)
	}
	jobs := []domain.JobHandle{{ID: "3", Group: "B"}, {ID: "7", Group: "B"}}
	if err := client.SubmitBatch(ctx, jobs); err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}

	if len(requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(requests))
	}

	one := requests[0]
	if one.ClientID != "test-client" || len(one.Targets) != 1 || one.Targets[0] != "9" {
		t.Errorf("unexpected single request: %+v", one)
	}
	if !one.ExtraData.IsGroupExecutorRequest || one.ExtraData.Group != "A" {
		t.Errorf("unexpected extra_data: %+v", one.ExtraData)
	}

	batch := requests[1]
	if len(batch.Targets) != 2 || batch.Targets[0] != "3" || batch.Targets[1] != "7" {
		t.Errorf("unexpected batch targets: %v", batch.Targets)
	}
	if batch.ExtraData.Group != "B" {
		t.Errorf("expected group B, got %q", batch.ExtraData.Group)
	}
}

func TestClient_SubmitBatch_Empty(t *testing.T) {
	client := newTestClient("http://127.0.0.1:0")
	if err := client.SubmitBatch(context.Background(), nil); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestClient_Submit_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid prompt"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	err := newTestClient(server.URL).SubmitOne(context.Background(), domain.JobHandle{ID: "1"})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusBadRequest {
		t.Errorf("expected code 400, got %d", statusErr.Code)
	}
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Error("StatusError should unwrap to ErrUnexpectedStatus")
	}
}

func TestClient_Interrupt(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/interrupt" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := newTestClient(server.URL).Interrupt(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 interrupt call, got %d", calls)
	}
}

func TestNewClient_DefaultClientID(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://localhost:8188"})
	if client.ClientID() == "" {
		t.Error("expected generated client id")
	}
}

func TestStaticResolver(t *testing.T) {
	groups := map[string][]string{
		"render":  {"9", "12"},
		"upscale": {"20"},
	}
	r := NewStaticResolver(groups)

	// Таблица копируется.
	groups["render"][0] = "changed"

	jobs, err := r.Resolve(context.Background(), "render")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "9" || jobs[0].Group != "render" {
		t.Errorf("unexpected jobs: %+v", jobs)
	}

	jobs, err = r.Resolve(context.Background(), "missing")
	if err != nil || len(jobs) != 0 {
		t.Errorf("unknown group should resolve to empty list, got %v, %v", jobs, err)
	}

	r.Set("missing", []string{"1"})
	if got := r.Groups(); len(got) != 3 || got[0] != "missing" {
		t.Errorf("unexpected groups: %v", got)
	}
}

func TestResolverFunc(t *testing.T) {
	var f ResolverFunc = func(ctx context.Context, group string) ([]domain.JobHandle, error) {
		return []domain.JobHandle{{ID: group + "-1", Group: group}}, nil
	}
	jobs, _ := f.Resolve(context.Background(), "A")
	if len(jobs) != 1 || jobs[0].ID != "A-1" {
		t.Errorf("unexpected jobs: %+v", jobs)
	}
}
