// Package scheduler запускает планы по расписанию.
//
// Расписания объявляются в конфигурации (cron-выражение или интервал)
// и привязаны к контроллеру. Когда время подходит, план запускается
// через Host.Start. Если контроллер занят, запуск пропускается:
// повторный запуск на занятом контроллере — предупреждение, а не ошибка.
//
// Структура:
//   - scheduler.go — основная логика Scheduler (Run, Tick, processEntry)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Schedules: cfg.Schedules,
//	    Starter:   host,
//	    Logger:    logger,
//	})
//	go sched.Run(ctx)
package scheduler
