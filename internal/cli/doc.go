// Package cli реализует инструмент командной строки groupexec.
//
// # Обзор
//
// CLI — клиентская утилита для groupexec API. Работает через HTTP;
// из внутренних пакетов использует только engine для разбора плана
// и компактной записи шагов до отправки.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API. Инкапсулирует запросы, парсинг ответов
// (DataResponse, ListResponse, ErrorResponse) и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	controllers, err := client.ListControllers()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: groupexec controller list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - controller: list, show
//   - run: start, cancel, list, show
//   - schedule: list
//   - group: list
//
// Каждая группа создаётся через фабричную функцию (NewRunCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
