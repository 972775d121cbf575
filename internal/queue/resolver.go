package queue

import (
	"context"
	"sort"
	"sync"

	"github.com/shaiso/groupexec/internal/domain"
)

// ResolverFunc — функция как orchestrator.GroupResolver.
type ResolverFunc func(ctx context.Context, group string) ([]domain.JobHandle, error)

// Resolve вызывает f.
func (f ResolverFunc) Resolve(ctx context.Context, group string) ([]domain.JobHandle, error) {
	return f(ctx, group)
}

// StaticResolver — таблица «группа → id выходных узлов».
//
// Неизвестная группа даёт пустой список без ошибки: решение
// о том, что это ошибка шага, принимает контроллер.
type StaticResolver struct {
	mu     sync.RWMutex
	groups map[string][]string
}

// NewStaticResolver создаёт резолвер. Таблица копируется.
func NewStaticResolver(groups map[string][]string) *StaticResolver {
	r := &StaticResolver{groups: make(map[string][]string, len(groups))}
	for name, ids := range groups {
		r.groups[name] = append([]string(nil), ids...)
	}
	return r
}

// Resolve возвращает задания группы в порядке объявления.
func (r *StaticResolver) Resolve(ctx context.Context, group string) ([]domain.JobHandle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.groups[group]
	jobs := make([]domain.JobHandle, 0, len(ids))
	for _, id := range ids {
		jobs = append(jobs, domain.JobHandle{ID: id, Group: group})
	}
	return jobs, nil
}

// Set заменяет задания группы.
func (r *StaticResolver) Set(group string, ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[group] = append([]string(nil), ids...)
}

// Groups возвращает имена групп, отсортированные по алфавиту.
func (r *StaticResolver) Groups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
