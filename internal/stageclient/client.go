package stageclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/shaiso/Loanflow/internal/domain"
	"github.com/shaiso/Loanflow/internal/telemetry"
)

// Config — настройки клиента этапных сервисов.
type Config struct {
	Registry *Registry

	// Timeout — дедлайн одного HTTP-вызова (не всей серии retry).
	Timeout time.Duration

	// MaxAttempts — потолок попыток на один Invoke.
	MaxAttempts int

	// BaseDelay / MaxDelay — параметры exponential backoff.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// HTTPClient подменяется в тестах; nil — http.DefaultClient
	// без собственного таймаута (дедлайн задаёт context).
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client — HTTP-клиент этапных сервисов.
//
// Один Invoke = серия до MaxAttempts попыток с backoff по retryable
// ошибкам. Ошибки классифицируются по таксономии пакета; outcome
// REJECTED и NEEDS_INFO — валидные результаты, не ошибки.
type Client struct {
	registry    *Registry
	timeout     time.Duration
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	http        *http.Client
	logger      *slog.Logger
}

// New создаёт клиент этапных сервисов.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		registry:    cfg.Registry,
		timeout:     timeout,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		http:        httpClient,
		logger:      logger,
	}
}

// Invoke вызывает этапный сервис для заявки.
//
// Возвращает результат этапа и число сделанных попыток. При retryable
// ошибке (Unreachable/Timeout) повторяет до MaxAttempts с backoff;
// ErrInvalidResponse прерывает серию сразу.
func (c *Client) Invoke(ctx context.Context, stage domain.Stage, snap domain.Snapshot) (*domain.StageResult, int, error) {
	endpoint, err := c.registry.Endpoint(stage)
	if err != nil {
		return nil, 0, err
	}

	body, err := json.Marshal(snap)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal snapshot: %w", err)
	}

	logger := telemetry.WithStage(telemetry.WithApplicationID(c.logger, snap.ApplicationID.String()), string(stage))

	start := time.Now()
	defer func() {
		telemetry.StageCallDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	attempts := 0

	for attempts < c.maxAttempts {
		attempts++

		result, callErr := c.call(ctx, endpoint, body)
		if callErr == nil {
			telemetry.StageCalls.WithLabelValues(string(stage), resultLabel(result.Outcome)).Inc()
			return result, attempts, nil
		}

		// Родительский context отменён — прекращаем без классификации.
		if ctx.Err() != nil {
			return nil, attempts, ctx.Err()
		}

		lastErr = callErr
		telemetry.StageCalls.WithLabelValues(string(stage), errorLabel(callErr)).Inc()

		if !Retryable(callErr) {
			break
		}
		if attempts >= c.maxAttempts {
			break
		}

		delay := c.backoff(attempts)

		logger.Debug("retrying stage call",
			"attempt", attempts,
			"delay", delay,
			"error", callErr,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, attempts, ctx.Err()
		}
	}

	return nil, attempts, lastErr
}

// call делает одну попытку вызова POST {endpoint}/process.
func (c *Client) call(ctx context.Context, endpoint string, body []byte) (*domain.StageResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint+"/process", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: read body: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: read body: %v", ErrUnreachable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: status %d", ErrInvalidResponse, resp.StatusCode)
	}

	var result domain.StageResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidResponse, err)
	}

	switch result.Outcome {
	case domain.OutcomeApproved, domain.OutcomeRejected, domain.OutcomeNeedsInfo:
	default:
		return nil, fmt.Errorf("%w: outcome %q", ErrInvalidResponse, result.Outcome)
	}

	return &result, nil
}

// backoff вычисляет задержку перед следующей попыткой.
//
// delay = baseDelay * 2^(attempt-1), с потолком maxDelay и jitter ±25%,
// чтобы повторные вызовы разных заявок не синхронизировались.
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > c.maxDelay {
			delay = c.maxDelay
			break
		}
	}
	if delay > c.maxDelay {
		delay = c.maxDelay
	}

	jitter := time.Duration(rand.Int63n(int64(delay)/2+1)) - delay/4
	return delay + jitter
}

// resultLabel — метка метрики для валидного исхода этапа.
func resultLabel(o domain.Outcome) string {
	switch o {
	case domain.OutcomeApproved:
		return "approved"
	case domain.OutcomeRejected:
		return "rejected"
	case domain.OutcomeNeedsInfo:
		return "needs_info"
	default:
		return "unknown"
	}
}

// errorLabel — метка метрики для классифицированной ошибки.
func errorLabel(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	default:
		return "invalid_response"
	}
}
