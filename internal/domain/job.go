package domain

// JobHandle — непрозрачный идентификатор одной отправляемой единицы работы.
//
// Выдаётся GroupResolver'ом; оркестратор владеет им только на время
// одного вызова отправки.
type JobHandle struct {
	// ID — идентификатор задания во внешней очереди (например, id выходного узла).
	ID string `json:"id"`

	// Group — группа, из которой получен handle.
	Group string `json:"group,omitempty"`
}

// QueueStatus — агрегированная глубина внешней очереди.
//
// Очередь не сообщает, какие записи принадлежат какому отправителю,
// поэтому доступны только общие счётчики.
type QueueStatus struct {
	// Running — количество выполняющихся заданий.
	Running int `json:"running"`

	// Pending — количество заданий, ожидающих выполнения.
	Pending int `json:"pending"`
}

// IsDrained возвращает true, если очередь пуста.
func (s QueueStatus) IsDrained() bool {
	return s.Running == 0 && s.Pending == 0
}
