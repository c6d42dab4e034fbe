package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shaiso/Loanflow/internal/domain"
	"github.com/shaiso/Loanflow/internal/mq"
	"github.com/shaiso/Loanflow/internal/repo"
)

// Default configuration values.
const defaultMaxRetries = 5

// ApplicationStore — операции хранилища, нужные API.
// Реализуется repo.ApplicationRepo.
type ApplicationStore interface {
	Create(ctx context.Context, app *domain.Application) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Application, error)
	Save(ctx context.Context, app *domain.Application, expectedVersion int64, entry domain.HistoryEntry) error
	List(ctx context.Context, filter repo.Filter) ([]domain.Application, error)
	History(ctx context.Context, id uuid.UUID) ([]domain.HistoryEntry, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	store      ApplicationStore
	publisher  *mq.Publisher
	maxRetries int
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Store     ApplicationStore
	Publisher *mq.Publisher

	// MaxRetries — лимит восстановлений заявки (default: 5).
	// По его исчерпании retry переводит заявку в ABANDONED.
	MaxRetries int

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		store:      cfg.Store,
		publisher:  cfg.Publisher,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// publishEligible уведомляет оркестратор о готовой заявке.
// Сбой публикации не ошибка запроса: заявка в БД, polling подхватит.
func (h *Handler) publishEligible(ctx context.Context, id uuid.UUID) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.PublishApplicationEligible(ctx, id); err != nil {
		h.logger.Warn("failed to publish application.eligible",
			"application_id", id,
			"error", err,
		)
	}
}
