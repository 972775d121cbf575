// Package engine работает с планами выполнения групп.
//
// Включает:
//   - parser.go — разбор плана из JSON/YAML и компактной записи "A:2:1.5"
//   - plan.go   — нормализация (границы repeat/delay, пропуск пустых групп),
//     повтор плана с задержкой между копиями, подсчёт единиц прогресса
//
// Engine не выполняет план — это делает orchestrator.RunController.
package engine
