package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/Loanflow/internal/domain"
	"github.com/shaiso/Loanflow/internal/mq"
	"github.com/shaiso/Loanflow/internal/repo"
	"github.com/shaiso/Loanflow/internal/stageclient"
	"github.com/shaiso/Loanflow/internal/telemetry"
)

// processApplication выполняет ровно один этап для заявки.
//
// Последовательность: перечитать запись после захвата → вызвать этап →
// применить переход → сохранить с проверкой версии. Конфликт версии
// при сохранении молча отбрасывается: выигравшая сторона уже записала
// эквивалентный переход, наш результат лишний.
func (o *Orchestrator) processApplication(ctx context.Context, id uuid.UUID) {
	logger := telemetry.WithApplicationID(o.logger, id.String())

	// Состояние в уведомлении или в poll-выборке могло устареть —
	// единственный источник истины это запись в БД под захватом.
	app, err := o.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			logger.Warn("application vanished before processing")
			return
		}
		logger.Error("failed to reload application", "error", err)
		return
	}

	if !app.State.IsPending() {
		logger.Debug("application no longer eligible", "state", app.State)
		return
	}

	stage, ok := domain.StageFor(app.State)
	if !ok {
		logger.Error("no stage for pending state", "state", app.State)
		return
	}

	expected := app.Version
	prior := app.State

	result, attempts, err := o.invoker.Invoke(ctx, stage, app.Snapshot())
	if err != nil {
		o.handleStageFailure(ctx, app, expected, attempts, err)
		return
	}

	switch result.Outcome {
	case domain.OutcomeNeedsInfo:
		o.handleNeedsInfo(ctx, app, expected, attempts, result)

	default:
		next, terr := domain.Transition(prior, result.Outcome)
		if terr != nil {
			// Этап вернул валидный по форме, но недопустимый для
			// этого состояния outcome — протокольная ошибка.
			o.handleStageFailure(ctx, app, expected, attempts,
				fmt.Errorf("%w: outcome %s in state %s", stageclient.ErrInvalidResponse, result.Outcome, prior))
			return
		}

		app.Advance(next, result.Payload)

		entry := domain.HistoryEntry{
			ApplicationID: app.ID,
			StateEntered:  prior,
			Outcome:       string(result.Outcome),
			Attempts:      attempts,
			Detail:        result.Reason,
		}

		if !o.save(ctx, app, expected, entry) {
			return
		}

		logger.Info("stage completed",
			"stage", stage,
			"outcome", result.Outcome,
			"from", prior,
			"to", next,
			"version", app.Version,
		)

		completed := ""
		if result.Outcome == domain.OutcomeApproved {
			completed = string(domain.Completed(prior))
		}
		o.publishTransitioned(ctx, app, prior, completed, string(result.Outcome))

		// Следующий этап не ждёт ближайшего poll.
		if app.State.IsPending() {
			o.publishEligible(ctx, app.ID)
		}
	}
}

// handleNeedsInfo обрабатывает исход NEEDS_INFO: заявка остаётся
// в той же корзине, перепостановки ограничены лимитом.
func (o *Orchestrator) handleNeedsInfo(ctx context.Context, app *domain.Application, expected int64, attempts int, result *domain.StageResult) {
	logger := telemetry.WithApplicationID(o.logger, app.ID.String())
	prior := app.State

	if _, err := domain.Transition(prior, domain.OutcomeNeedsInfo); err != nil {
		o.handleStageFailure(ctx, app, expected, attempts,
			fmt.Errorf("%w: outcome NEEDS_INFO in state %s", stageclient.ErrInvalidResponse, prior))
		return
	}

	if !app.CanRecover(o.needsInfoMax) {
		app.MarkFailed("needs-info limit exceeded: " + result.Reason)
		entry := domain.HistoryEntry{
			ApplicationID: app.ID,
			StateEntered:  prior,
			Outcome:       "FAILED",
			Attempts:      attempts,
			Detail:        app.LastError,
		}
		if o.save(ctx, app, expected, entry) {
			logger.Warn("needs-info limit exceeded, application failed",
				"failed_from", app.FailedFrom,
				"retry_count", app.RetryCount,
			)
			o.publishTransitioned(ctx, app, prior, "", "FAILED")
		}
		return
	}

	app.Requeue()
	entry := domain.HistoryEntry{
		ApplicationID: app.ID,
		StateEntered:  prior,
		Outcome:       string(domain.OutcomeNeedsInfo),
		Attempts:      attempts,
		Detail:        result.Reason,
	}
	if !o.save(ctx, app, expected, entry) {
		return
	}

	logger.Info("application requeued for more info",
		"state", prior,
		"retry_count", app.RetryCount,
		"reason", result.Reason,
	)
	o.publishTransitioned(ctx, app, prior, "", string(domain.OutcomeNeedsInfo))
	o.publishEligible(ctx, app.ID)
}

// handleStageFailure переводит заявку в FAILED после исчерпания
// попыток или протокольной ошибки этапа.
func (o *Orchestrator) handleStageFailure(ctx context.Context, app *domain.Application, expected int64, attempts int, callErr error) {
	logger := telemetry.WithApplicationID(o.logger, app.ID.String())

	// Остановка процесса — не сбой заявки: она осталась в PENDING_*
	// и будет подхвачена после рестарта.
	if errors.Is(callErr, context.Canceled) {
		logger.Debug("stage call aborted by shutdown")
		return
	}

	prior := app.State
	app.MarkFailed(callErr.Error())

	entry := domain.HistoryEntry{
		ApplicationID: app.ID,
		StateEntered:  prior,
		Outcome:       "FAILED",
		Attempts:      attempts,
		Detail:        callErr.Error(),
	}
	if !o.save(ctx, app, expected, entry) {
		return
	}

	logger.Warn("stage failed, application parked",
		"failed_from", prior,
		"attempts", attempts,
		"error", callErr,
	)
	o.publishTransitioned(ctx, app, prior, "", "FAILED")
}

// save сохраняет переход с проверкой версии.
// false — переход не сохранён (конфликт версии или ошибка БД).
func (o *Orchestrator) save(ctx context.Context, app *domain.Application, expected int64, entry domain.HistoryEntry) bool {
	if err := o.store.Save(ctx, app, expected, entry); err != nil {
		if errors.Is(err, repo.ErrVersionConflict) {
			telemetry.VersionConflicts.Inc()
			o.logger.Debug("transition dropped on version conflict",
				"application_id", app.ID,
				"expected_version", expected,
			)
			return false
		}
		o.logger.Error("failed to save transition",
			"application_id", app.ID,
			"error", err,
		)
		return false
	}

	telemetry.Transitions.WithLabelValues(string(entry.StateEntered), string(app.State)).Inc()
	return true
}

// publishEligible публикует уведомление о готовности заявки.
func (o *Orchestrator) publishEligible(ctx context.Context, id uuid.UUID) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishApplicationEligible(ctx, id); err != nil {
		// Не ошибка обработки: заявка в БД, polling подхватит
		o.logger.Warn("failed to publish application.eligible",
			"application_id", id,
			"error", err,
		)
	}
}

// publishTransitioned публикует аудит-событие перехода.
func (o *Orchestrator) publishTransitioned(ctx context.Context, app *domain.Application, from domain.State, completed, outcome string) {
	if o.publisher == nil {
		return
	}
	payload := mq.ApplicationTransitionedPayload{
		ApplicationID: app.ID,
		From:          string(from),
		Completed:     completed,
		To:            string(app.State),
		Outcome:       outcome,
		Version:       app.Version,
	}
	if err := o.publisher.PublishApplicationTransitioned(ctx, payload); err != nil {
		o.logger.Warn("failed to publish application.transitioned",
			"application_id", app.ID,
			"error", err,
		)
	}
}
