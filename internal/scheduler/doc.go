// Package scheduler реализует движок расписаний.
//
// Engine отбирает due schedules и выполняет их действия.
// Все точки входа (поллер, webhook, ручной запуск, CLI) вызывают
// одну и ту же пару "отбор + выполнение".
//
// Структура:
//   - recurrence.go — вычисление следующего запуска (once, daily, weekly, monthly)
//   - due.go        — отбор due и пропущенных schedules (допуск + cooldown)
//   - dispatcher.go — выполнение действия и классификация итога
//   - backoff.go    — пауза между повторами после ошибки
//   - scheduler.go  — Engine: RunDue, RunNow, CatchUp
//   - poller.go     — фоновый цикл Idle → Checking → Sleeping
//
// Использование:
//
//	engine := scheduler.New(scheduler.Config{
//	    Store:      scheduleRepo,
//	    Dispatcher: dispatcher,
//	    Calculator: scheduler.NewCalculator(scheduler.DefaultUTCOffset),
//	    Window:     scheduler.DefaultWindow(),
//	    Logger:     logger,
//	})
//
//	poller, _ := scheduler.NewPoller(scheduler.PollerConfig{Runner: engine, Logger: logger})
//	go poller.Run(ctx)
//
// Дедупликация:
//
// Блокировок нет. Повторное выполнение одной строки поллером и webhook
// гасится cooldown (по умолчанию 10 минут от last_run_at). Это эвристика:
// два прохода, начавшиеся до записи run-state, могут выполнить
// schedule дважды.
package scheduler
