package domain

import (
	"math"
	"time"
)

// DelaySentinel — имя группы, обозначающее шаг чистой задержки.
// Такой шаг ничего не отправляет в очередь, только ждёт DelaySeconds.
const DelaySentinel = "__delay__"

// ExecutionStep — одна запланированная единица работы.
type ExecutionStep struct {
	// GroupName — имя группы или DelaySentinel.
	GroupName string `json:"group_name" yaml:"group_name"`

	// RepeatCount — сколько раз отправить задания группы (>= 1).
	// Для DelaySentinel всегда 1.
	RepeatCount int `json:"repeat_count" yaml:"repeat_count"`

	// DelaySeconds — пауза после того, как очередь опустела,
	// перед следующей единицей работы.
	DelaySeconds float64 `json:"delay_seconds" yaml:"delay_seconds"`
}

// IsDelay возвращает true для шага чистой задержки.
func (s ExecutionStep) IsDelay() bool {
	return s.GroupName == DelaySentinel
}

// Delay возвращает DelaySeconds как time.Duration.
// Отрицательные и нечисловые значения дают 0.
func (s ExecutionStep) Delay() time.Duration {
	if s.DelaySeconds <= 0 || math.IsNaN(s.DelaySeconds) || math.IsInf(s.DelaySeconds, 0) {
		return 0
	}
	return time.Duration(s.DelaySeconds * float64(time.Second))
}

// NewDelayStep создаёт шаг чистой задержки.
func NewDelayStep(seconds float64) ExecutionStep {
	return ExecutionStep{
		GroupName:    DelaySentinel,
		RepeatCount:  1,
		DelaySeconds: seconds,
	}
}

// ExecutionPlan — упорядоченный список шагов.
// Порядок вставки совпадает с порядком выполнения. Пустой план допустим.
type ExecutionPlan []ExecutionStep

// TotalUnits возвращает количество единиц прогресса:
// сумму RepeatCount по всем шагам, кроме задержек.
func (p ExecutionPlan) TotalUnits() int {
	total := 0
	for _, step := range p {
		if step.IsDelay() {
			continue
		}
		if step.RepeatCount < 1 {
			total++
			continue
		}
		total += step.RepeatCount
	}
	return total
}

// Groups возвращает имена групп плана в порядке появления, без повторов.
func (p ExecutionPlan) Groups() []string {
	seen := make(map[string]bool)
	var groups []string
	for _, step := range p {
		if step.IsDelay() || step.GroupName == "" || seen[step.GroupName] {
			continue
		}
		seen[step.GroupName] = true
		groups = append(groups, step.GroupName)
	}
	return groups
}
