package domain

import (
	"time"

	"github.com/google/uuid"
)

// Application — запись заявки на кредит.
//
// Запись — единственный разделяемый мутабельный ресурс системы.
// State мутируется только оркестратором (или операторским override),
// всегда под per-application блокировкой и с проверкой Version.
type Application struct {
	// ID — уникальный идентификатор заявки. Назначается при создании, неизменяем.
	ID uuid.UUID `json:"id"`

	// CustomerID — ссылка на клиента во внешней CRM.
	CustomerID string `json:"customer_id"`

	// State — текущее состояние конвейера.
	State State `json:"state"`

	// FailedFrom — PENDING_* состояние, из которого заявка упала в FAILED.
	// Пустое, если State != FAILED. Retry возвращает заявку ровно сюда.
	FailedFrom State `json:"failed_from,omitempty"`

	// LastError — детали последней ошибки; очищается при успешном retry.
	LastError string `json:"last_error,omitempty"`

	// Version — монотонный счётчик версий записи. Начинается с 1,
	// увеличивается ровно на 1 при каждом сохранённом переходе.
	// Optimistic-concurrency guard против двойной обработки.
	Version int64 `json:"version"`

	// RetryCount — счётчик повторных восстановлений (retry из FAILED и
	// NEEDS_INFO-перепостановок). Отдельный от счётчика попыток одного
	// вызова; ограничивает общее число восстановлений до ABANDONED.
	RetryCount int `json:"retry_count"`

	// Context — накопленные выходы этапов (лимит оффера, ставка,
	// одобренная сумма и т.д.). Передаётся этапам через Snapshot.
	Context map[string]any `json:"context,omitempty"`

	// CreatedAt — время создания заявки.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего сохранённого перехода.
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryEntry — одна запись append-only истории заявки.
//
// История никогда не сокращается и не правится на месте: ровно одна
// запись на каждый сохранённый переход, Seq равен версии записи
// после сохранения.
type HistoryEntry struct {
	ApplicationID uuid.UUID `json:"application_id"`
	Seq           int64     `json:"seq"`

	// StateEntered — состояние, в котором выполнялся этап (PENDING_*),
	// либо FAILED/терминальное для операторских действий.
	StateEntered State `json:"state_entered"`

	// Outcome — исход: APPROVED/REJECTED/NEEDS_INFO, либо FAILED,
	// RETRY, ABANDONED для служебных переходов.
	Outcome string `json:"outcome"`

	// Attempts — число попыток вызова этапа (включая первую).
	// 0 для операторских действий.
	Attempts int `json:"attempts"`

	// Detail — причина исхода или текст ошибки.
	Detail string `json:"detail,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewApplication создаёт заявку в начальном состоянии PENDING_SALES.
func NewApplication(customerID string, ctx map[string]any) *Application {
	if ctx == nil {
		ctx = make(map[string]any)
	}
	now := time.Now()
	return &Application{
		ID:         uuid.New(),
		CustomerID: customerID,
		State:      StatePendingSales,
		Version:    1,
		Context:    ctx,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Snapshot возвращает срез заявки для передачи этапному сервису.
// Контекст копируется: этап не должен видеть последующие мутации.
func (a *Application) Snapshot() Snapshot {
	ctx := make(map[string]any, len(a.Context))
	for k, v := range a.Context {
		ctx[k] = v
	}
	return Snapshot{
		ApplicationID: a.ID,
		CustomerID:    a.CustomerID,
		State:         a.State,
		Context:       ctx,
	}
}

// Advance переводит заявку в next, вливая выходы этапа в контекст.
func (a *Application) Advance(next State, outputs map[string]any) {
	if a.Context == nil {
		a.Context = make(map[string]any)
	}
	for k, v := range outputs {
		a.Context[k] = v
	}
	a.State = next
	a.LastError = ""
	a.FailedFrom = ""
	a.UpdatedAt = time.Now()
}

// MarkFailed переводит заявку в FAILED, запоминая откуда упала.
func (a *Application) MarkFailed(errMsg string) {
	a.FailedFrom = a.State
	a.State = StateFailed
	a.LastError = errMsg
	a.UpdatedAt = time.Now()
}

// Recover возвращает FAILED-заявку в состояние, из которого она упала,
// и увеличивает счётчик восстановлений. LastError очищается.
func (a *Application) Recover() State {
	prior := a.FailedFrom
	a.State = prior
	a.FailedFrom = ""
	a.LastError = ""
	a.RetryCount++
	a.UpdatedAt = time.Now()
	return prior
}

// Requeue оставляет заявку в текущем PENDING_* (исход NEEDS_INFO),
// засчитывая восстановление в общий лимит.
func (a *Application) Requeue() {
	a.RetryCount++
	a.UpdatedAt = time.Now()
}

// Abandon переводит заявку в ABANDONED (операторский override
// или исчерпание лимита восстановлений).
func (a *Application) Abandon(reason string) {
	a.FailedFrom = ""
	a.State = StateAbandoned
	if reason != "" {
		a.LastError = reason
	}
	a.UpdatedAt = time.Now()
}

// CanRecover проверяет, не исчерпан ли лимит восстановлений.
func (a *Application) CanRecover(maxRetries int) bool {
	return a.RetryCount < maxRetries
}

// IsFinished возвращает true для терминальных состояний.
func (a *Application) IsFinished() bool {
	return a.State.IsTerminal()
}
