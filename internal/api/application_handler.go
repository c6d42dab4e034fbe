package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shaiso/Loanflow/internal/domain"
	"github.com/shaiso/Loanflow/internal/repo"
)

// Срок кредита по умолчанию, месяцев.
const defaultTenureMonths = 36

// SubmitApplication создаёт новую заявку и ставит её в конвейер.
// POST /api/v1/applications
func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	var req SubmitApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.CustomerID == "" {
		BadRequest(w, "customer_id is required")
		return
	}
	if req.RequestedAmount <= 0 {
		BadRequest(w, "requested_amount must be positive")
		return
	}
	tenure := req.TenureMonths
	if tenure == 0 {
		tenure = defaultTenureMonths
	}
	if tenure < 0 {
		BadRequest(w, "tenure_months must be positive")
		return
	}

	app := domain.NewApplication(req.CustomerID, map[string]any{
		domain.CtxRequestedAmount: req.RequestedAmount,
		domain.CtxTenureMonths:    tenure,
	})

	if err := h.store.Create(r.Context(), app); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.publishEligible(r.Context(), app.ID)

	h.logger.Info("application submitted",
		"application_id", app.ID,
		"customer_id", app.CustomerID,
		"requested_amount", req.RequestedAmount,
	)

	Created(w, ApplicationFromDomain(*app))
}

// GetApplication возвращает заявку с историей переходов.
// GET /api/v1/applications/{id}
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid application id")
		return
	}

	app, err := h.store.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "application not found") {
		return
	}

	history, err := h.store.History(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	Success(w, ApplicationDetailResponse{
		ApplicationResponse: ApplicationFromDomain(*app),
		History:             HistoryFromDomain(history),
	})
}

// ListApplications возвращает список заявок с фильтрацией.
// GET /api/v1/applications?state=...&customer_id=...&limit=...&offset=...
func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	filter := repo.Filter{Limit: 50}

	if state := r.URL.Query().Get("state"); state != "" {
		if !domain.State(state).IsValid() {
			BadRequest(w, "unknown state")
			return
		}
		filter.State = domain.State(state)
	}
	filter.CustomerID = r.URL.Query().Get("customer_id")

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			BadRequest(w, "invalid offset")
			return
		}
		filter.Offset = offset
	}

	apps, err := h.store.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ApplicationResponse, len(apps))
	for i, app := range apps {
		result[i] = ApplicationFromDomain(app)
	}

	List(w, result, len(result))
}

// RetryApplication возвращает FAILED-заявку в этап, с которого она упала.
// POST /api/v1/applications/{id}/retry
//
// Retry применим только к FAILED; для остальных состояний — 409.
// По исчерпании лимита восстановлений заявка переводится в ABANDONED.
func (h *Handler) RetryApplication(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid application id")
		return
	}

	app, err := h.store.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "application not found") {
		return
	}

	if app.State != domain.StateFailed {
		Conflict(w, "application is not in FAILED state")
		return
	}

	expected := app.Version

	if !app.CanRecover(h.maxRetries) {
		app.Abandon("retry limit exhausted")
		entry := domain.HistoryEntry{
			ApplicationID: app.ID,
			StateEntered:  domain.StateFailed,
			Outcome:       "ABANDONED",
			Detail:        "retry limit exhausted",
		}
		if err := h.store.Save(r.Context(), app, expected, entry); HandleRepoError(w, h.logger, err, "") {
			return
		}
		h.logger.Warn("retry limit exhausted, application abandoned",
			"application_id", app.ID,
			"retry_count", app.RetryCount,
		)
		Conflict(w, "retry limit exhausted, application abandoned")
		return
	}

	resumed := app.Recover()
	entry := domain.HistoryEntry{
		ApplicationID: app.ID,
		StateEntered:  domain.StateFailed,
		Outcome:       "RETRY",
		Detail:        "operator retry",
	}
	if err := h.store.Save(r.Context(), app, expected, entry); HandleRepoError(w, h.logger, err, "") {
		return
	}

	h.publishEligible(r.Context(), app.ID)

	h.logger.Info("application retried",
		"application_id", app.ID,
		"resumed_state", resumed,
		"retry_count", app.RetryCount,
	)

	Success(w, ApplicationFromDomain(*app))
}

// AbandonApplication закрывает заявку операторским решением.
// POST /api/v1/applications/{id}/abandon
func (h *Handler) AbandonApplication(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid application id")
		return
	}

	var req AbandonApplicationRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequest(w, "invalid request body")
			return
		}
	}

	app, err := h.store.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "application not found") {
		return
	}

	if app.IsFinished() {
		Conflict(w, "application is already finished")
		return
	}

	expected := app.Version
	prior := app.State

	reason := req.Reason
	if reason == "" {
		reason = "operator abandon"
	}
	app.Abandon(reason)

	entry := domain.HistoryEntry{
		ApplicationID: app.ID,
		StateEntered:  prior,
		Outcome:       "ABANDONED",
		Detail:        reason,
	}
	if err := h.store.Save(r.Context(), app, expected, entry); HandleRepoError(w, h.logger, err, "") {
		return
	}

	h.logger.Info("application abandoned",
		"application_id", app.ID,
		"from", prior,
		"reason", reason,
	)

	Success(w, ApplicationFromDomain(*app))
}
