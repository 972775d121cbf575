package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// StatusLine — строка статуса панели.
type StatusLine struct {
	Text      string `json:"text"`
	Percent   int    `json:"percent"`
	Alert     string `json:"alert,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

// ControllerResponse — контроллер из API.
type ControllerResponse struct {
	ControllerID string      `json:"controller_id"`
	State        string      `json:"state"`
	RunID        string      `json:"run_id,omitempty"`
	Executing    bool        `json:"executing"`
	Cancelling   bool        `json:"cancelling"`
	CurrentStep  int         `json:"current_step"`
	TotalSteps   int         `json:"total_steps"`
	Percent      int         `json:"percent"`
	LastRunID    string      `json:"last_run_id,omitempty"`
	LastStatus   string      `json:"last_status,omitempty"`
	LastError    string      `json:"last_error,omitempty"`
	Status       *StatusLine `json:"status,omitempty"`
}

// StatusText возвращает строку статуса или пустую строку.
func (c ControllerResponse) StatusText() string {
	if c.Status == nil {
		return ""
	}
	if c.Status.Alert != "" {
		return c.Status.Alert
	}
	return c.Status.Text
}

// StartRunResponse — ответ на запуск плана.
type StartRunResponse struct {
	ControllerID string `json:"controller_id"`
	RunID        string `json:"run_id,omitempty"`
	TotalSteps   int    `json:"total_steps"`
	Queued       bool   `json:"queued"`
}

// RunResponse — run из истории.
type RunResponse struct {
	ID           string           `json:"id"`
	ControllerID string           `json:"controller_id"`
	Plan         []map[string]any `json:"plan"`
	Status       string           `json:"status"`
	CurrentStep  int              `json:"current_step"`
	TotalSteps   int              `json:"total_steps"`
	Error        string           `json:"error,omitempty"`
	StartedAt    string           `json:"started_at,omitempty"`
	FinishedAt   string           `json:"finished_at,omitempty"`
	DurationMs   int64            `json:"duration_ms,omitempty"`
	CreatedAt    string           `json:"created_at"`
}

// ScheduleResponse — расписание из API.
type ScheduleResponse struct {
	Name        string `json:"name"`
	Controller  string `json:"controller"`
	Cron        string `json:"cron,omitempty"`
	IntervalSec int    `json:"interval_sec,omitempty"`
	Disabled    bool   `json:"disabled"`
	NextDueAt   string `json:"next_due_at,omitempty"`
	LastRunAt   string `json:"last_run_at,omitempty"`
	LastRunID   string `json:"last_run_id,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

// --- Request types ---

// StartRunRequest — запуск плана на контроллере.
type StartRunRequest struct {
	Plan       json.RawMessage `json:"plan,omitempty"`
	Steps      []string        `json:"steps,omitempty"`
	Repeat     int             `json:"repeat,omitempty"`
	GroupDelay float64         `json:"group_delay,omitempty"`
	Queued     bool            `json:"queued,omitempty"`
}

// ListRunsOpts — параметры фильтрации runs.
type ListRunsOpts struct {
	ControllerID string
	Status       string
	Limit        int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для groupexec API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Controllers ---

// ListControllers возвращает все контроллеры.
func (c *Client) ListControllers() ([]ControllerResponse, error) {
	var controllers []ControllerResponse
	err := c.list("/api/v1/controllers", nil, &controllers)
	return controllers, err
}

// GetController возвращает контроллер по ID.
func (c *Client) GetController(id string) (*ControllerResponse, error) {
	var ctrl ControllerResponse
	err := c.get("/api/v1/controllers/"+url.PathEscape(id), &ctrl)
	return &ctrl, err
}

// StartRun запускает план на контроллере.
func (c *Client) StartRun(controllerID string, req StartRunRequest) (*StartRunResponse, error) {
	var resp StartRunResponse
	err := c.post("/api/v1/controllers/"+url.PathEscape(controllerID)+"/runs", req, &resp)
	return &resp, err
}

// CancelRun отменяет текущий run контроллера.
func (c *Client) CancelRun(controllerID string) (*ControllerResponse, error) {
	var ctrl ControllerResponse
	err := c.post("/api/v1/controllers/"+url.PathEscape(controllerID)+"/cancel", nil, &ctrl)
	return &ctrl, err
}

// --- Runs ---

// ListRuns возвращает историю runs с фильтрацией.
func (c *Client) ListRuns(opts ListRunsOpts) ([]RunResponse, error) {
	params := url.Values{}
	if opts.ControllerID != "" {
		params.Set("controller_id", opts.ControllerID)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var runs []RunResponse
	err := c.list("/api/v1/runs", params, &runs)
	return runs, err
}

// GetRun возвращает run по ID.
func (c *Client) GetRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/"+id, &run)
	return &run, err
}

// --- Schedules и группы ---

// ListSchedules возвращает расписания.
func (c *Client) ListSchedules() ([]ScheduleResponse, error) {
	var schedules []ScheduleResponse
	err := c.list("/api/v1/schedules", nil, &schedules)
	return schedules, err
}

// ListGroups возвращает имена групп.
func (c *Client) ListGroups() ([]string, error) {
	var groups []string
	err := c.list("/api/v1/groups", nil, &groups)
	return groups, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// APIError — ошибка, возвращённая API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return &APIError{Status: resp.StatusCode}
	}

	return &APIError{Status: resp.StatusCode, Code: er.Error.Code, Message: er.Error.Message}
}
