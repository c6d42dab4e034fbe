package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Loanflow/internal/domain"
	"github.com/shaiso/Loanflow/internal/repo"
	"github.com/shaiso/Loanflow/internal/telemetry"
)

// Default configuration values.
const (
	defaultBatchSize  = 100
	defaultCooldown   = time.Minute
	defaultMaxRetries = 5
)

// Store — хранилище заявок, как его видит планировщик.
// Реализуется repo.ApplicationRepo.
type Store interface {
	ListFailed(ctx context.Context, cutoff time.Time, limit int) ([]domain.Application, error)
	Save(ctx context.Context, app *domain.Application, expectedVersion int64, entry domain.HistoryEntry) error
}

// Publisher — уведомление оркестратора о восстановленных заявках.
type Publisher interface {
	PublishApplicationEligible(ctx context.Context, applicationID uuid.UUID) error
}

// Scheduler — плановое восстановление FAILED-заявок.
type Scheduler struct {
	store      Store
	publisher  Publisher
	logger     *slog.Logger
	batchSize  int
	cooldown   time.Duration
	maxRetries int
}

// Config — конфигурация Scheduler.
type Config struct {
	Store     Store
	Publisher Publisher
	Logger    *slog.Logger

	// BatchSize — заявок за один проход (default: 100).
	BatchSize int

	// Cooldown — минимальный «возраст» FAILED-заявки для восстановления:
	// даёт затухнуть транзиентному сбою до повторного вызова (default: 1m).
	Cooldown time.Duration

	// MaxRetries — лимит восстановлений; по исчерпании заявка
	// переводится в ABANDONED (default: 5).
	MaxRetries int
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		store:      cfg.Store,
		publisher:  cfg.Publisher,
		logger:     logger,
		batchSize:  batchSize,
		cooldown:   cooldown,
		maxRetries: maxRetries,
	}
}

// Sweep выполняет один проход восстановления.
//
// 1. Находит FAILED-заявки, остывшие не позже now-cooldown
// 2. Возвращает каждую в этап, с которого она упала (или в ABANDONED
//    по исчерпании лимита восстановлений)
// 3. Публикует application.eligible для восстановленных
//
// Ошибки одной заявки не блокируют обработку остальных.
func (s *Scheduler) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-s.cooldown)

	apps, err := s.store.ListFailed(ctx, cutoff, s.batchSize)
	if err != nil {
		return fmt.Errorf("list failed applications: %w", err)
	}

	if len(apps) == 0 {
		return nil
	}

	s.logger.Debug("sweep found failed applications", "count", len(apps))

	var recovered, abandoned int
	for i := range apps {
		app := &apps[i]

		wasRecovered, err := s.processFailed(ctx, app)
		if err != nil {
			s.logger.Error("failed to process application",
				"application_id", app.ID,
				"error", err,
			)
			continue
		}

		if wasRecovered {
			recovered++
		} else {
			abandoned++
		}
	}

	s.logger.Info("retry sweep completed",
		"found", len(apps),
		"recovered", recovered,
		"abandoned", abandoned,
	)

	return nil
}

// processFailed восстанавливает одну заявку.
// Возвращает true при восстановлении, false при переводе в ABANDONED.
func (s *Scheduler) processFailed(ctx context.Context, app *domain.Application) (bool, error) {
	expected := app.Version

	if !app.CanRecover(s.maxRetries) {
		app.Abandon("retry limit exhausted")
		entry := domain.HistoryEntry{
			ApplicationID: app.ID,
			StateEntered:  domain.StateFailed,
			Outcome:       "ABANDONED",
			Detail:        "retry limit exhausted",
		}
		if err := s.save(ctx, app, expected, entry); err != nil {
			return false, err
		}

		s.logger.Warn("retry limit exhausted, application abandoned",
			"application_id", app.ID,
			"retry_count", app.RetryCount,
		)
		return false, nil
	}

	resumed := app.Recover()
	entry := domain.HistoryEntry{
		ApplicationID: app.ID,
		StateEntered:  domain.StateFailed,
		Outcome:       "RETRY",
		Detail:        "scheduled retry",
	}
	if err := s.save(ctx, app, expected, entry); err != nil {
		return false, err
	}

	telemetry.RetriesScheduled.Inc()
	s.logger.Info("application recovered by sweep",
		"application_id", app.ID,
		"resumed_state", resumed,
		"retry_count", app.RetryCount,
	)

	if s.publisher != nil {
		if err := s.publisher.PublishApplicationEligible(ctx, app.ID); err != nil {
			// Не фатально: заявка уже в PENDING_*, polling подхватит
			s.logger.Warn("failed to publish application.eligible",
				"application_id", app.ID,
				"error", err,
			)
		}
	}

	return true, nil
}

// save сохраняет переход; конфликт версии — не ошибка прохода:
// заявку уже продвинул оператор или другой экземпляр планировщика.
func (s *Scheduler) save(ctx context.Context, app *domain.Application, expected int64, entry domain.HistoryEntry) error {
	err := s.store.Save(ctx, app, expected, entry)
	if errors.Is(err, repo.ErrVersionConflict) {
		telemetry.VersionConflicts.Inc()
		s.logger.Debug("sweep transition dropped on version conflict",
			"application_id", app.ID,
		)
		return nil
	}
	return err
}
