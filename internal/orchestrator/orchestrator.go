package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Loanflow/internal/domain"
	"github.com/shaiso/Loanflow/internal/mq"
	"github.com/shaiso/Loanflow/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 100
	defaultWorkers      = 4
	defaultNeedsInfoMax = 3
)

// Store — хранилище заявок, как его видит оркестратор.
// Реализуется repo.ApplicationRepo; в тестах — in-memory store.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Application, error)
	Save(ctx context.Context, app *domain.Application, expectedVersion int64, entry domain.HistoryEntry) error
	ListEligible(ctx context.Context, state domain.State, limit int) ([]domain.Application, error)
}

// StageInvoker — клиент этапных сервисов. Реализуется stageclient.Client.
type StageInvoker interface {
	Invoke(ctx context.Context, stage domain.Stage, snap domain.Snapshot) (*domain.StageResult, int, error)
}

// Publisher — издатель событий заявок. Реализуется mq.Publisher;
// nil допустим, тогда события не публикуются (polling всё подхватит).
type Publisher interface {
	PublishApplicationEligible(ctx context.Context, applicationID uuid.UUID) error
	PublishApplicationTransitioned(ctx context.Context, payload mq.ApplicationTransitionedPayload) error
}

// Orchestrator управляет обработкой заявок.
//
// Центральный компонент системы, который:
//   - Получает уведомления о готовых заявках из RabbitMQ (event-driven)
//   - Периодически опрашивает PENDING_* заявки в БД (polling fallback)
//   - Вызывает этапные сервисы через пул worker-горутин
//   - Применяет переходы состояния и сохраняет их с проверкой версии
type Orchestrator struct {
	store   Store
	invoker StageInvoker

	// MQ
	publisher Publisher
	conn      *mq.Connection
	consumer  *mq.Consumer

	// Active applications — заявки в обработке (per-process lock).
	active map[uuid.UUID]struct{}
	mu     sync.Mutex

	// Worker pool
	workers int
	work    chan uuid.UUID

	// Configuration
	pollInterval time.Duration
	batchSize    int
	needsInfoMax int

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	Store   Store
	Invoker StageInvoker

	// MQ. Conn может быть nil — тогда работает только polling.
	Publisher Publisher
	Conn      *mq.Connection

	// Workers — размер пула worker-горутин (default: 4).
	Workers int

	// PollInterval — интервал polling fallback (default: 10s).
	PollInterval time.Duration

	// BatchSize — заявок на одно состояние за один poll (default: 100).
	BatchSize int

	// NeedsInfoMax — лимит NEEDS_INFO-перепостановок до FAILED (default: 3).
	NeedsInfoMax int

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	needsInfoMax := cfg.NeedsInfoMax
	if needsInfoMax <= 0 {
		needsInfoMax = defaultNeedsInfoMax
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		store:        cfg.Store,
		invoker:      cfg.Invoker,
		publisher:    cfg.Publisher,
		conn:         cfg.Conn,
		active:       make(map[uuid.UUID]struct{}),
		workers:      workers,
		work:         make(chan uuid.UUID, workers*2),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		needsInfoMax: needsInfoMax,
		logger:       logger,
	}
}

// Start запускает Orchestrator.
//
// Запускает:
//   - Пул worker-горутин
//   - Consumer для applications.eligible (если есть MQ-соединение)
//   - Polling горутину для fallback
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator",
		"workers", o.workers,
		"poll_interval", o.pollInterval,
		"batch_size", o.batchSize,
	)

	for i := 0; i < o.workers; i++ {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.workerLoop(ctx)
		}()
	}

	if o.conn != nil {
		o.consumer = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueApplicationsEligible),
			Handler:  o.handleEligible,
			Prefetch: o.workers,
		})

		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := o.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("eligible consumer error", "error", err)
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.pollLoop(ctx)
	}()

	o.logger.Info("orchestrator started")
	return nil
}

// Stop останавливает Orchestrator и дожидается worker-горутин.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}
	if o.consumer != nil {
		o.consumer.Stop()
	}

	o.wg.Wait()

	o.logger.Info("orchestrator stopped",
		"active_applications", o.ActiveCount(),
	)
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// Dispatch ставит заявку в очередь на обработку.
//
// Захват делается до постановки в канал: заявка, уже находящаяся
// в обработке или в очереди, молча пропускается (ErrApplicationActive).
func (o *Orchestrator) Dispatch(ctx context.Context, id uuid.UUID) error {
	if o.IsStopped() {
		return ErrStopped
	}

	if !o.acquire(id) {
		return ErrApplicationActive
	}

	select {
	case o.work <- id:
		return nil
	case <-ctx.Done():
		o.release(id)
		return ctx.Err()
	}
}

// workerLoop — цикл одной worker-горутины.
func (o *Orchestrator) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-o.work:
			o.processApplication(ctx, id)
			o.release(id)
		}
	}
}

// pollLoop — цикл polling fallback.
//
// Обходит PENDING_* корзины по кругу в фиксированном порядке, чтобы
// поток новых заявок не вытеснял заявки поздних этапов.
func (o *Orchestrator) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте: подхватываем заявки,
	// созданные пока оркестратор был выключен.
	o.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling по всем корзинам.
func (o *Orchestrator) poll(ctx context.Context) {
	for _, state := range domain.PendingStates() {
		apps, err := o.store.ListEligible(ctx, state, o.batchSize)
		if err != nil {
			o.logger.Error("failed to list eligible applications",
				"state", state,
				"error", err,
			)
			continue
		}

		for i := range apps {
			if ctx.Err() != nil {
				return
			}
			if err := o.Dispatch(ctx, apps[i].ID); err != nil {
				if errors.Is(err, ErrApplicationActive) {
					continue
				}
				return
			}
		}
	}
}

// handleEligible — обработчик сообщений applications.eligible.
func (o *Orchestrator) handleEligible(ctx context.Context, d *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.ApplicationEligiblePayload](&d.Message)
	if err != nil {
		o.logger.Error("failed to parse application.eligible payload", "error", err)
		return err
	}

	if err := o.Dispatch(ctx, payload.ApplicationID); err != nil {
		if errors.Is(err, ErrApplicationActive) {
			// Уже в обработке — уведомление избыточно
			return nil
		}
		return err
	}
	return nil
}

// acquire пытается захватить заявку. false — уже захвачена.
func (o *Orchestrator) acquire(id uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.active[id]; exists {
		return false
	}
	o.active[id] = struct{}{}
	telemetry.ActiveApplications.Set(float64(len(o.active)))
	return true
}

// release снимает захват заявки.
func (o *Orchestrator) release(id uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, id)
	telemetry.ActiveApplications.Set(float64(len(o.active)))
}

// IsActive проверяет, обрабатывается ли заявка сейчас.
func (o *Orchestrator) IsActive(id uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, exists := o.active[id]
	return exists
}

// ActiveCount возвращает количество заявок в обработке.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}
