// Package orchestrator выполняет планы групп на общей удалённой очереди.
//
// RunController отвечает за:
//   - Последовательное выполнение шагов плана (с повторами и задержками)
//   - Отправку заданий группы: bulk или по одному с ожиданием очереди
//   - Ожидание опустошения очереди (опрос статуса + короткая пауза)
//   - Отмену: флаг, ровно один interrupt, рассылку соседним контроллерам
//   - Прогресс и статус через StatusSink
//
// Host держит набор именованных контроллеров (панелей), которые делят
// одну очередь и одну шину прерываний.
package orchestrator
