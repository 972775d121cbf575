// Package config загружает конфигурацию groupexec-server.
//
// Источники, в порядке приоритета:
//   - переменные окружения (DB_URL, RABBITMQ_URL, QUEUE_URL, ...)
//   - YAML файл из GROUPEXEC_CONFIG (группы, контроллеры, расписания)
//   - значения по умолчанию
//
// Postgres и RabbitMQ необязательны: пустой URL отключает историю
// и межпроцессную шину соответственно.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/groupexec/internal/domain"
)

// Значения по умолчанию.
const (
	DefaultAPIPort           = "8080"
	DefaultQueueURL          = "http://127.0.0.1:8188"
	DefaultQueueTimeout      = 10 * time.Second
	DefaultPollInterval      = 500 * time.Millisecond
	DefaultDrainGrace        = 100 * time.Millisecond
	DefaultStatusResetDelay  = 2 * time.Second
	DefaultSchedulerInterval = time.Second
)

// EnvConfigPath — переменная с путём к YAML файлу.
const EnvConfigPath = "GROUPEXEC_CONFIG"

var (
	// ErrInvalidConfig — конфигурация не прошла проверку.
	ErrInvalidConfig = errors.New("invalid config")
)

// Config — конфигурация сервера.
type Config struct {
	// APIPort — порт HTTP API.
	APIPort string `yaml:"api_port"`

	// DBURL — строка подключения к Postgres. Пусто — история отключена.
	DBURL string `yaml:"db_url"`

	// RabbitMQURL — адрес RabbitMQ. Пусто — планы из очереди и
	// межпроцессные прерывания отключены.
	RabbitMQURL string `yaml:"rabbitmq_url"`

	// InstanceID — идентификатор процесса для моста прерываний.
	InstanceID string `yaml:"instance_id"`

	Queue QueueConfig `yaml:"queue"`
	Drain DrainConfig `yaml:"drain"`

	// StatusResetDelay — через сколько очищать финальный статус.
	// Отрицательное значение отключает очистку.
	StatusResetDelay time.Duration `yaml:"status_reset_delay"`

	// SchedulerInterval — период тиков планировщика.
	SchedulerInterval time.Duration `yaml:"scheduler_interval"`

	// Groups — задания каждой группы: имя группы → id выходных узлов.
	Groups map[string][]string `yaml:"groups"`

	// Controllers — контроллеры, создаваемые при старте.
	// Остальные создаются по первому обращению.
	Controllers []string `yaml:"controllers"`

	Schedules []ScheduleConfig `yaml:"schedules"`
}

// QueueConfig — внешняя очередь заданий.
type QueueConfig struct {
	URL string `yaml:"url"`

	// BulkSubmit — очередь принимает все задания группы одним запросом.
	// false — только последовательная отправка.
	BulkSubmit bool `yaml:"bulk_submit"`

	Timeout time.Duration `yaml:"timeout"`
}

// DrainConfig — опрос очереди до опустошения.
type DrainConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Grace        time.Duration `yaml:"grace"`
}

// ScheduleConfig — план, запускаемый по расписанию.
type ScheduleConfig struct {
	Name       string `yaml:"name"`
	Controller string `yaml:"controller"`

	// Cron — cron-выражение из пяти полей. Приоритетнее IntervalSec.
	Cron        string `yaml:"cron"`
	IntervalSec int    `yaml:"interval_sec"`
	Timezone    string `yaml:"timezone"`

	Plan       domain.ExecutionPlan `yaml:"plan"`
	Repeat     int                  `yaml:"repeat"`
	GroupDelay float64              `yaml:"group_delay"`

	// Disabled — расписание объявлено, но не запускается.
	Disabled bool `yaml:"disabled"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		APIPort: DefaultAPIPort,
		Queue: QueueConfig{
			URL:        DefaultQueueURL,
			BulkSubmit: true,
			Timeout:    DefaultQueueTimeout,
		},
		Drain: DrainConfig{
			PollInterval: DefaultPollInterval,
			Grace:        DefaultDrainGrace,
		},
		StatusResetDelay:  DefaultStatusResetDelay,
		SchedulerInterval: DefaultSchedulerInterval,
		Groups:            map[string][]string{},
	}
}

// Load собирает конфигурацию: defaults, затем файл из GROUPEXEC_CONFIG,
// затем переменные окружения.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(EnvConfigPath); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile читает YAML поверх значений по умолчанию. Окружение не учитывается.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if c.Groups == nil {
		c.Groups = map[string][]string{}
	}
	return nil
}

// applyEnv переопределяет поля из окружения.
func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setDuration := func(key string, dst *time.Duration) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
		}
		*dst = d
		return nil
	}

	setString("GROUPEXEC_API_PORT", &c.APIPort)
	setString("DB_URL", &c.DBURL)
	setString("RABBITMQ_URL", &c.RabbitMQURL)
	setString("GROUPEXEC_INSTANCE_ID", &c.InstanceID)
	setString("QUEUE_URL", &c.Queue.URL)

	if v := getenv("QUEUE_BULK_SUBMIT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: QUEUE_BULK_SUBMIT: %v", ErrInvalidConfig, err)
		}
		c.Queue.BulkSubmit = b
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"QUEUE_TIMEOUT", &c.Queue.Timeout},
		{"DRAIN_POLL_INTERVAL", &c.Drain.PollInterval},
		{"DRAIN_GRACE", &c.Drain.Grace},
		{"STATUS_RESET_DELAY", &c.StatusResetDelay},
		{"SCHEDULER_INTERVAL", &c.SchedulerInterval},
	}
	for _, d := range durations {
		if err := setDuration(d.key, d.dst); err != nil {
			return err
		}
	}

	return nil
}

// parseDuration принимает "500ms", "2s" или число секунд ("1.5").
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// Validate проверяет конфигурацию.
func (c *Config) Validate() error {
	var errs []error

	if c.APIPort == "" {
		errs = append(errs, errors.New("api_port is required"))
	}
	if c.Queue.URL == "" {
		errs = append(errs, errors.New("queue.url is required"))
	}
	if c.Drain.PollInterval <= 0 {
		errs = append(errs, errors.New("drain.poll_interval must be positive"))
	}
	if c.SchedulerInterval <= 0 {
		errs = append(errs, errors.New("scheduler_interval must be positive"))
	}

	for name, ids := range c.Groups {
		if name == "" || name == domain.DelaySentinel {
			errs = append(errs, fmt.Errorf("invalid group name %q", name))
		}
		if len(ids) == 0 {
			errs = append(errs, fmt.Errorf("group %q has no jobs", name))
		}
	}

	seen := make(map[string]bool)
	for i, s := range c.Schedules {
		switch {
		case s.Name == "":
			errs = append(errs, fmt.Errorf("schedules[%d]: name is required", i))
		case seen[s.Name]:
			errs = append(errs, fmt.Errorf("schedules[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true

		if s.Controller == "" {
			errs = append(errs, fmt.Errorf("schedule %q: controller is required", s.Name))
		}
		if s.Cron == "" && s.IntervalSec <= 0 {
			errs = append(errs, fmt.Errorf("schedule %q: cron or interval_sec is required", s.Name))
		}
		if len(s.Plan) == 0 {
			errs = append(errs, fmt.Errorf("schedule %q: plan is empty", s.Name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ControllerIDs возвращает контроллеры из списка и из расписаний, без повторов.
func (c *Config) ControllerIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}
	for _, id := range c.Controllers {
		add(id)
	}
	for _, s := range c.Schedules {
		add(s.Controller)
	}
	return ids
}
