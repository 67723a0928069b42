// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (хранилище, движок, аналитика, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery, метрики)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - schedule_handler.go — обработчики для /schedules
//   - webhook_handler.go  — внешний триггер прохода по расписаниям
//
// API предоставляет REST endpoints для управления schedules и ручного запуска.
package api
