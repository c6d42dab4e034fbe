package orchestrator

import "errors"

var (
	// ErrApplicationActive — заявка уже обрабатывается этим экземпляром.
	ErrApplicationActive = errors.New("application already active")

	// ErrNotEligible — заявка не в PENDING_* состоянии.
	ErrNotEligible = errors.New("application not eligible for processing")

	// ErrStopped — оркестратор остановлен, новые заявки не принимаются.
	ErrStopped = errors.New("orchestrator stopped")
)
