package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Loanflow/internal/domain"
)

// SubmitApplicationRequest — запрос на подачу заявки.
type SubmitApplicationRequest struct {
	CustomerID      string  `json:"customer_id"`
	RequestedAmount float64 `json:"requested_amount"`

	// TenureMonths — срок кредита; 0 означает срок по умолчанию (36).
	TenureMonths int `json:"tenure_months,omitempty"`
}

// AbandonApplicationRequest — операторский запрос на закрытие заявки.
type AbandonApplicationRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ApplicationResponse — представление заявки в API.
type ApplicationResponse struct {
	ID         uuid.UUID      `json:"id"`
	CustomerID string         `json:"customer_id"`
	State      string         `json:"state"`
	FailedFrom string         `json:"failed_from,omitempty"`
	LastError  string         `json:"last_error,omitempty"`
	Version    int64          `json:"version"`
	RetryCount int            `json:"retry_count"`
	Context    map[string]any `json:"context,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// ApplicationDetailResponse — заявка вместе с историей переходов.
type ApplicationDetailResponse struct {
	ApplicationResponse
	History []HistoryEntryResponse `json:"history"`
}

// HistoryEntryResponse — запись истории в API.
type HistoryEntryResponse struct {
	Seq          int64     `json:"seq"`
	StateEntered string    `json:"state_entered"`
	Outcome      string    `json:"outcome"`
	Attempts     int       `json:"attempts"`
	Detail       string    `json:"detail,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ApplicationFromDomain конвертирует доменную заявку в DTO.
func ApplicationFromDomain(app domain.Application) ApplicationResponse {
	return ApplicationResponse{
		ID:         app.ID,
		CustomerID: app.CustomerID,
		State:      string(app.State),
		FailedFrom: string(app.FailedFrom),
		LastError:  app.LastError,
		Version:    app.Version,
		RetryCount: app.RetryCount,
		Context:    app.Context,
		CreatedAt:  app.CreatedAt,
		UpdatedAt:  app.UpdatedAt,
	}
}

// HistoryFromDomain конвертирует записи истории в DTO.
func HistoryFromDomain(entries []domain.HistoryEntry) []HistoryEntryResponse {
	result := make([]HistoryEntryResponse, len(entries))
	for i, e := range entries {
		result[i] = HistoryEntryResponse{
			Seq:          e.Seq,
			StateEntered: string(e.StateEntered),
			Outcome:      e.Outcome,
			Attempts:     e.Attempts,
			Detail:       e.Detail,
			CreatedAt:    e.CreatedAt,
		}
	}
	return result
}
