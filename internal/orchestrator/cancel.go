package orchestrator

import "sync/atomic"

// cancelToken — флаг отмены одного run.
//
// Создаётся при старте run и проверяется в каждой точке ожидания.
// Done закрывается ровно один раз, поэтому ожидания (опрос очереди,
// задержки) прерываются сразу.
type cancelToken struct {
	cancelled atomic.Bool
	done      chan struct{}
}

func newCancelToken() *cancelToken {
	return &cancelToken{done: make(chan struct{})}
}

// Cancel устанавливает флаг. Возвращает true, только если флаг
// установил именно этот вызов.
func (t *cancelToken) Cancel() bool {
	if !t.cancelled.CompareAndSwap(false, true) {
		return false
	}
	close(t.done)
	return true
}

// Cancelled возвращает true после Cancel.
func (t *cancelToken) Cancelled() bool {
	return t.cancelled.Load()
}

// Done возвращает канал, закрываемый при отмене.
func (t *cancelToken) Done() <-chan struct{} {
	return t.done
}
