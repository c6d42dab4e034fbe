// Package scheduler реализует плановое восстановление FAILED-заявок.
//
// Scheduler периодически находит заявки, упавшие из-за транзиентных
// сбоев этапных сервисов, и возвращает их в этап, с которого они
// упали. Заявки с исчерпанным лимитом восстановлений переводятся
// в ABANDONED.
//
// Структура:
//   - scheduler.go — основная логика (Sweep, processFailed)
//   - cron.go      — расписание прохода (robfig/cron) и цикл Run
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Store:     appRepo,
//	    Publisher: publisher, // опционально
//	    Logger:    logger,
//	})
//
//	schedule, _ := scheduler.SweepSchedule()
//	sched.Run(ctx, schedule)
//
// Leader Election:
//
// Scheduler не реализует leader election самостоятельно.
// Это делается в main.go через pg_try_advisory_lock:
// Sweep выполняет только лидер.
package scheduler
