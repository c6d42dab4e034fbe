package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shaiso/Loanflow/internal/api"
	"github.com/shaiso/Loanflow/internal/domain"
	"github.com/shaiso/Loanflow/internal/stageclient"
)

// Processor — логика одного этапа.
type Processor interface {
	Process(ctx context.Context, snap domain.Snapshot) (*domain.StageResult, error)
}

// ErrBadSnapshot — в snapshot нет обязательного ключа контекста.
// Ретраить бесполезно: это ошибка протокола между оркестратором и этапом.
var ErrBadSnapshot = errors.New("bad snapshot")

func missingKey(key string) error {
	return fmt.Errorf("%w: missing context key %q", ErrBadSnapshot, key)
}

// NewMux собирает HTTP-мультиплексор этапного сервиса.
func NewMux(stage domain.Stage, proc Processor, logger *slog.Logger) *http.ServeMux {
	chain := api.Chain(
		api.Recovery(logger),
		api.Logging(logger),
	)

	mux := http.NewServeMux()
	mux.Handle("POST /process", chain(processHandler(stage, proc, logger)))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// processHandler — единый обработчик протокола POST /process.
func processHandler(stage domain.Stage, proc Processor, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var snap domain.Snapshot
		if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
			api.BadRequest(w, "invalid snapshot")
			return
		}

		result, err := proc.Process(r.Context(), snap)
		if err != nil {
			status := classifyStatus(err)
			logger.Warn("stage processing failed",
				"stage", stage,
				"application_id", snap.ApplicationID,
				"status", status,
				"error", err,
			)
			api.Error(w, status, api.ErrCodeInternalError, err.Error())
			return
		}

		logger.Info("stage processed",
			"stage", stage,
			"application_id", snap.ApplicationID,
			"customer_id", snap.CustomerID,
			"outcome", result.Outcome,
		)

		api.JSON(w, http.StatusOK, result)
	})
}

// classifyStatus транслирует ошибку этапа в HTTP-статус:
// retryable-сбои зависимостей — 503 (оркестратор повторит),
// протокольные ошибки — 422 (повтор бессмыслен), остальное — 502.
func classifyStatus(err error) int {
	switch {
	case errors.Is(err, ErrBadSnapshot):
		return http.StatusUnprocessableEntity
	case stageclient.Retryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// --- Context helpers ---

// ctxFloat достаёт число из контекста snapshot. Значения приходят
// и как float64 (после JSON), и как int (в тестах и при создании).
func ctxFloat(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// ctxInt достаёт целое из контекста snapshot.
func ctxInt(m map[string]any, key string) (int, bool) {
	f, ok := ctxFloat(m, key)
	return int(f), ok
}
