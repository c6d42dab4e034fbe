package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
)

// Расписание прохода по умолчанию: каждую минуту.
const defaultSweepCron = "* * * * *"

// cronParser — парсер cron-выражений (стандартные 5 полей).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// SweepSchedule возвращает расписание прохода из RETRY_SWEEP_CRON
// или расписание по умолчанию.
func SweepSchedule() (cron.Schedule, error) {
	expr := os.Getenv("RETRY_SWEEP_CRON")
	if expr == "" {
		expr = defaultSweepCron
	}
	return ParseSchedule(expr)
}

// ParseSchedule парсит cron-выражение.
func ParseSchedule(expr string) (cron.Schedule, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// Run выполняет Sweep по расписанию до отмены контекста.
func (s *Scheduler) Run(ctx context.Context, schedule cron.Schedule) error {
	for {
		next := schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("retry sweep failed", "error", err)
			}
		}
	}
}
