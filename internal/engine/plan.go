package engine

import (
	"fmt"
	"math"

	"github.com/shaiso/groupexec/internal/domain"
)

// Границы значений шага (совпадают с ограничениями панели).
const (
	MaxRepeatCount  = 100
	MaxDelaySeconds = 300.0
)

// Normalize приводит план к исполнимому виду.
//
// Правила:
//   - шаги с пустым именем группы пропускаются
//   - RepeatCount ограничивается диапазоном [1, MaxRepeatCount]
//   - DelaySeconds ограничивается диапазоном [0, MaxDelaySeconds], NaN/Inf → 0
//   - у шага задержки RepeatCount всегда 1
//
// Исходный план не изменяется. Каждое исправление возвращается как Issue.
func Normalize(plan domain.ExecutionPlan) (domain.ExecutionPlan, []Issue) {
	result := make(domain.ExecutionPlan, 0, len(plan))
	var issues []Issue

	for i, step := range plan {
		if step.GroupName == "" {
			issues = append(issues, Issue{Index: i, Field: "group_name", Message: "empty group name, step skipped"})
			continue
		}

		switch {
		case math.IsNaN(step.DelaySeconds) || math.IsInf(step.DelaySeconds, 0):
			issues = append(issues, Issue{Index: i, Field: "delay_seconds", Message: "not a finite number, using 0"})
			step.DelaySeconds = 0
		case step.DelaySeconds < 0:
			issues = append(issues, Issue{Index: i, Field: "delay_seconds", Message: "negative delay, using 0"})
			step.DelaySeconds = 0
		case step.DelaySeconds > MaxDelaySeconds:
			issues = append(issues, Issue{Index: i, Field: "delay_seconds",
				Message: fmt.Sprintf("delay %.1fs exceeds maximum, using %.0f", step.DelaySeconds, MaxDelaySeconds)})
			step.DelaySeconds = MaxDelaySeconds
		}

		if step.IsDelay() {
			if step.RepeatCount != 1 && step.RepeatCount != 0 {
				issues = append(issues, Issue{Index: i, Field: "repeat_count", Message: "delay step cannot repeat, using 1"})
			}
			step.RepeatCount = 1
			result = append(result, step)
			continue
		}

		switch {
		case step.RepeatCount < 1:
			if step.RepeatCount != 0 {
				issues = append(issues, Issue{Index: i, Field: "repeat_count", Message: "repeat count below 1, using 1"})
			}
			step.RepeatCount = 1
		case step.RepeatCount > MaxRepeatCount:
			issues = append(issues, Issue{Index: i, Field: "repeat_count",
				Message: fmt.Sprintf("repeat count %d exceeds maximum, using %d", step.RepeatCount, MaxRepeatCount)})
			step.RepeatCount = MaxRepeatCount
		}

		result = append(result, step)
	}

	return result, issues
}

// Repeat повторяет план count раз, вставляя между копиями шаг задержки
// длительностью groupDelay секунд. После последней копии задержка не добавляется.
//
// count < 1 трактуется как 1.
func Repeat(plan domain.ExecutionPlan, count int, groupDelay float64) domain.ExecutionPlan {
	if count < 1 {
		count = 1
	}

	result := make(domain.ExecutionPlan, 0, len(plan)*count+count-1)
	for i := 0; i < count; i++ {
		result = append(result, plan...)
		if i < count-1 {
			result = append(result, domain.NewDelayStep(groupDelay))
		}
	}
	return result
}

// Append добавляет шаг в конец плана (цепочка узлов Single).
func Append(plan domain.ExecutionPlan, step domain.ExecutionStep) domain.ExecutionPlan {
	result := make(domain.ExecutionPlan, 0, len(plan)+1)
	result = append(result, plan...)
	return append(result, step)
}

// TotalUnits возвращает количество единиц прогресса плана в том виде,
// в котором его выполнит контроллер (после Normalize).
func TotalUnits(plan domain.ExecutionPlan) int {
	normalized, _ := Normalize(plan)
	return normalized.TotalUnits()
}
