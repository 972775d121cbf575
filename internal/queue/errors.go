package queue

import (
	"errors"
	"fmt"
)

// Ошибки клиента очереди.
var (
	// ErrTransport — запрос не дошёл до очереди (сеть, таймаут).
	ErrTransport = errors.New("queue transport error")

	// ErrUnexpectedStatus — очередь ответила не 2xx.
	ErrUnexpectedStatus = errors.New("unexpected queue response status")

	// ErrMalformedResponse — ответ очереди не удалось разобрать.
	ErrMalformedResponse = errors.New("malformed queue response")

	// ErrEmptyBatch — нечего отправлять.
	ErrEmptyBatch = errors.New("empty job batch")
)

// StatusError — ответ очереди с кодом не 2xx.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}
