package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/groupexec/internal/domain"
)

// Значения по умолчанию.
const (
	defaultTimeout   = 30 * time.Second
	maxErrorBodySize = 4 * 1024
)

// Пути API очереди.
const (
	pathQueue     = "/queue"
	pathPrompt    = "/prompt"
	pathInterrupt = "/interrupt"
)

// queueResponse — ответ GET /queue. Элементы списков не разбираются,
// важна только их длина.
type queueResponse struct {
	Running []json.RawMessage `json:"queue_running"`
	Pending []json.RawMessage `json:"queue_pending"`
}

// promptRequest — тело POST /prompt.
type promptRequest struct {
	ClientID  string    `json:"client_id"`
	Targets   []string  `json:"targets"`
	ExtraData extraData `json:"extra_data"`
}

// extraData помечает запрос как внутренний, чтобы перехватчик
// отправки на стороне очереди пропускал его без фильтрации.
type extraData struct {
	IsGroupExecutorRequest bool   `json:"isGroupExecutorRequest"`
	Group                  string `json:"group,omitempty"`
}

// Config — конфигурация Client.
type Config struct {
	// BaseURL — адрес очереди, например http://127.0.0.1:8188.
	BaseURL string

	// ClientID — идентификатор отправителя (default: случайный UUID).
	ClientID string

	// Timeout — таймаут одного HTTP запроса (default: 30s).
	Timeout time.Duration

	// HTTPClient — готовый клиент (тесты). Если задан, Timeout не применяется.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client — HTTP-клиент очереди.
type Client struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient создаёт Client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		clientID:   clientID,
		httpClient: httpClient,
		logger:     logger,
	}
}

// ClientID возвращает идентификатор отправителя.
func (c *Client) ClientID() string {
	return c.clientID
}

// Status возвращает глубину очереди.
// Отсутствующие списки считаются пустыми.
func (c *Client) Status(ctx context.Context) (domain.QueueStatus, error) {
	resp, err := c.do(ctx, http.MethodGet, pathQueue, nil)
	if err != nil {
		return domain.QueueStatus{}, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, http.MethodGet, pathQueue); err != nil {
		return domain.QueueStatus{}, err
	}

	var qr queueResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return domain.QueueStatus{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return domain.QueueStatus{
		Running: len(qr.Running),
		Pending: len(qr.Pending),
	}, nil
}

// SubmitOne отправляет одно задание.
func (c *Client) SubmitOne(ctx context.Context, job domain.JobHandle) error {
	return c.submit(ctx, job.Group, []string{job.ID})
}

// SubmitBatch отправляет все задания одним запросом.
// Задания одного вызова относятся к одной группе.
func (c *Client) SubmitBatch(ctx context.Context, jobs []domain.JobHandle) error {
	if len(jobs) == 0 {
		return ErrEmptyBatch
	}

	targets := make([]string, len(jobs))
	for i, job := range jobs {
		targets[i] = job.ID
	}
	return c.submit(ctx, jobs[0].Group, targets)
}

// Interrupt прерывает выполняющееся задание.
func (c *Client) Interrupt(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, pathInterrupt, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, http.MethodPost, pathInterrupt); err != nil {
		return err
	}

	c.logger.Info("queue interrupted")
	return nil
}

func (c *Client) submit(ctx context.Context, group string, targets []string) error {
	req := promptRequest{
		ClientID: c.clientID,
		Targets:  targets,
		ExtraData: extraData{
			IsGroupExecutorRequest: true,
			Group:                  group,
		},
	}

	resp, err := c.do(ctx, http.MethodPost, pathPrompt, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, http.MethodPost, pathPrompt); err != nil {
		return err
	}

	// Тело ответа (prompt_id) не используется.
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Debug("jobs queued", "group", group, "targets", len(targets))
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response, method, path string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	return &StatusError{
		Method: method,
		Path:   path,
		Code:   resp.StatusCode,
		Body:   strings.TrimSpace(string(data)),
	}
}
