package engine

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/groupexec/internal/domain"
)

// ParsePlan разбирает документ плана в формате JSON или YAML.
//
// Документ может быть списком шагов или одним шагом:
//
//	[{"group_name": "A", "repeat_count": 2, "delay_seconds": 0}]
//	{"group_name": "A", "repeat_count": 2}
//
// YAML — надмножество JSON, поэтому оба формата разбираются одним декодером.
// Результат не нормализован: вызывающий код применяет Normalize.
func ParsePlan(data []byte) (domain.ExecutionPlan, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, NewValidationError(-1, "", "plan document is empty", ErrEmptyPlanDocument)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, NewValidationError(-1, "", fmt.Sprintf("parse plan: %v", err), ErrInvalidPlan)
	}

	if len(node.Content) == 0 {
		return nil, NewValidationError(-1, "", "plan document is empty", ErrEmptyPlanDocument)
	}
	root := node.Content[0]

	switch root.Kind {
	case yaml.SequenceNode:
		var plan domain.ExecutionPlan
		if err := root.Decode(&plan); err != nil {
			return nil, NewValidationError(-1, "", fmt.Sprintf("decode plan: %v", err), ErrInvalidPlan)
		}
		if plan == nil {
			plan = domain.ExecutionPlan{}
		}
		return plan, nil

	case yaml.MappingNode:
		var step domain.ExecutionStep
		if err := root.Decode(&step); err != nil {
			return nil, NewValidationError(0, "", fmt.Sprintf("decode step: %v", err), ErrInvalidPlan)
		}
		return domain.ExecutionPlan{step}, nil

	default:
		return nil, NewValidationError(-1, "", "plan must be a step or a list of steps", ErrInvalidPlan)
	}
}

// ParseStepSpec разбирает компактную запись шага "group[:repeat[:delay]]".
//
// Примеры:
//
//	"A"          → {A, 1, 0}
//	"A:2"        → {A, 2, 0}
//	"A:2:1.5"    → {A, 2, 1.5}
//	"delay:3"    → шаг задержки на 3 секунды
//
// Имя группы может содержать ':' — разбор идёт с конца строки.
func ParseStepSpec(spec string) (domain.ExecutionStep, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return domain.ExecutionStep{}, NewValidationError(-1, "group_name", "empty step spec", ErrInvalidStepSpec)
	}

	if rest, ok := strings.CutPrefix(spec, "delay:"); ok {
		seconds, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return domain.ExecutionStep{}, NewValidationError(-1, "delay_seconds",
				fmt.Sprintf("invalid delay %q", rest), ErrInvalidStepSpec)
		}
		return domain.NewDelayStep(seconds), nil
	}

	parts := strings.Split(spec, ":")
	step := domain.ExecutionStep{RepeatCount: 1}

	// Числовые суффиксы отрезаются с конца: сначала delay, потом repeat.
	var numbers []string
	for len(parts) > 1 && len(numbers) < 2 {
		last := parts[len(parts)-1]
		if _, err := strconv.ParseFloat(last, 64); err != nil {
			break
		}
		numbers = append([]string{last}, numbers...)
		parts = parts[:len(parts)-1]
	}

	step.GroupName = strings.Join(parts, ":")
	if step.GroupName == "" {
		return domain.ExecutionStep{}, NewValidationError(-1, "group_name", "empty group name", ErrInvalidStepSpec)
	}

	if len(numbers) >= 1 {
		repeat, err := strconv.Atoi(numbers[0])
		if err != nil {
			return domain.ExecutionStep{}, NewValidationError(-1, "repeat_count",
				fmt.Sprintf("invalid repeat count %q", numbers[0]), ErrInvalidStepSpec)
		}
		step.RepeatCount = repeat
	}
	if len(numbers) == 2 {
		delay, _ := strconv.ParseFloat(numbers[1], 64)
		step.DelaySeconds = delay
	}

	return step, nil
}
