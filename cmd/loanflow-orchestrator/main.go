// Loanflow Orchestrator — двигает заявки по конвейеру этапов.
//
// Orchestrator:
//   - Получает подходящие заявки из RabbitMQ (плюс polling fallback)
//   - Вызывает этапный сервис текущего состояния
//   - Применяет результат к машине состояний заявки
//   - Публикует события переходов
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Loanflow/internal/mq"
	"github.com/shaiso/Loanflow/internal/orchestrator"
	"github.com/shaiso/Loanflow/internal/repo"
	"github.com/shaiso/Loanflow/internal/stageclient"
	"github.com/shaiso/Loanflow/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting loanflow-orchestrator")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	appRepo := repo.NewApplicationRepo(pool)

	// RabbitMQ
	var publisher *mq.Publisher
	var mqConn *mq.Connection

	mqConn, err = mq.NewConnection(mq.URLFromEnv(), logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		// Создаём топологию
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher = mq.NewPublisher(mqConn, logger)
	}

	// Клиент этапных сервисов
	invoker := stageclient.New(stageclient.Config{
		Registry:    stageclient.NewRegistryFromEnv(),
		Timeout:     envDuration("STAGE_TIMEOUT", 0),
		MaxAttempts: envInt("STAGE_MAX_ATTEMPTS", 0),
		Logger:      logger,
	})

	// Создаём orchestrator
	orchCfg := orchestrator.Config{
		Store:        appRepo,
		Invoker:      invoker,
		Conn:         mqConn,
		Workers:      envInt("ORCH_WORKERS", 0),
		PollInterval: envDuration("ORCH_POLL_INTERVAL", 0),
		NeedsInfoMax: envInt("NEEDS_INFO_MAX", 0),
		Logger:       logger,
	}
	// typed-nil в интерфейсном поле обошёл бы проверку publisher == nil
	if publisher != nil {
		orchCfg.Publisher = publisher
	}
	orch := orchestrator.New(orchCfg)

	// Запускаем orchestrator
	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8083"
	if v := os.Getenv("ORCH_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Останавливаем orchestrator
	orch.Stop()
	logger.Info("loanflow-orchestrator stopped")
}

// envInt читает целое из окружения; 0 оставляет значение по умолчанию пакета.
func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// envDuration читает длительность из окружения ("5s", "1m").
func envDuration(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
