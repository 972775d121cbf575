package orchestrator

import (
	"log/slog"
	"sort"
	"sync"
)

// LogSink пишет статус в лог.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink создаёт LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Report(u StatusUpdate) {
	s.logger.Info("status",
		"controller_id", u.ControllerID,
		"run_id", u.RunID,
		"text", u.Text,
		"percent", u.Percent,
	)
}

func (s *LogSink) Alert(controllerID, message string) {
	s.logger.Error("alert", "controller_id", controllerID, "message", message)
}

func (s *LogSink) Clear(controllerID string) {
	s.logger.Debug("status cleared", "controller_id", controllerID)
}

// MultiSink рассылает статус нескольким получателям.
type MultiSink []StatusSink

func (m MultiSink) Report(u StatusUpdate) {
	for _, s := range m {
		s.Report(u)
	}
}

func (m MultiSink) Alert(controllerID, message string) {
	for _, s := range m {
		s.Alert(controllerID, message)
	}
}

func (m MultiSink) Clear(controllerID string) {
	for _, s := range m {
		s.Clear(controllerID)
	}
}

// BoardEntry — последний статус контроллера.
type BoardEntry struct {
	StatusUpdate
	Alert string `json:"alert,omitempty"`
}

// StatusBoard хранит последний статус каждого контроллера в памяти.
// Используется API для отображения строки статуса панели.
type StatusBoard struct {
	mu      sync.RWMutex
	entries map[string]BoardEntry
}

// NewStatusBoard создаёт пустую доску статусов.
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{entries: make(map[string]BoardEntry)}
}

func (b *StatusBoard) Report(u StatusUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := b.entries[u.ControllerID]
	if entry.RunID != u.RunID {
		entry.Alert = ""
	}
	entry.StatusUpdate = u
	b.entries[u.ControllerID] = entry
}

func (b *StatusBoard) Alert(controllerID, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := b.entries[controllerID]
	entry.ControllerID = controllerID
	entry.Alert = message
	b.entries[controllerID] = entry
}

func (b *StatusBoard) Clear(controllerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, controllerID)
}

// Get возвращает статус контроллера.
func (b *StatusBoard) Get(controllerID string) (BoardEntry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.entries[controllerID]
	return entry, ok
}

// All возвращает статусы всех контроллеров, отсортированные по ID.
func (b *StatusBoard) All() []BoardEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]BoardEntry, 0, len(b.entries))
	for _, entry := range b.entries {
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ControllerID < result[j].ControllerID
	})
	return result
}
