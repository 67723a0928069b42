// Package cli реализует инструмент командной строки Herald.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Herald API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Herald API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок. Ответ webhook читается без обёртки data.
//
//	client := cli.NewClient("http://localhost:8080")
//	schedules, err := client.ListSchedules(cli.ListSchedulesOpts{})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: herald schedule list --json | jq .
//
// ## Commands
//
//   - schedule: list, create, show, update, delete, enable, disable, run, catch-up
//   - trigger: один проход через webhook (--key)
//
// Каждая группа создаётся через фабричную функцию (NewScheduleCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
