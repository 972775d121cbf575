package mq

import "errors"

// Ошибки слоя сообщений.
var (
	// ErrNoChannel — канал недоступен (идёт переподключение).
	ErrNoChannel = errors.New("no channel available")

	// ErrConnectionClosed — соединение закрыто через Close.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrPermanent — сообщение не может быть обработано никогда.
	// Consumer отправляет такое сообщение в DLQ без повторов.
	ErrPermanent = errors.New("permanent message failure")
)
