// Loanflow Scheduler — возвращает FAILED-заявки в конвейер по расписанию.
//
// Запускается в нескольких экземплярах; лидерство разыгрывается через
// pg_try_advisory_lock, так что sweep в каждый момент выполняет ровно
// один экземпляр.
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
	"github.com/shaiso/Loanflow/internal/repo"
	"github.com/shaiso/Loanflow/internal/scheduler"
	"github.com/shaiso/Loanflow/internal/telemetry"
)

const schedLockKey int64 = 727272

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting loanflow-scheduler")

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

	// RabbitMQ — опционально: без publisher восстановленные заявки
	// подхватит polling оркестратора
	var publisher *mq.Publisher
	mqConn, err := mq.NewConnection(mq.URLFromEnv(), logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, recovered applications rely on polling", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")
		publisher = mq.NewPublisher(mqConn, logger)
	}

	schedCfg := scheduler.Config{
		Store:      appRepo,
		MaxRetries: envInt("MAX_RETRIES", 0),
		Logger:     logger,
	}
	// typed-nil в интерфейсном поле обошёл бы проверку publisher != nil
	if publisher != nil {
		schedCfg.Publisher = publisher
	}
	sched := scheduler.New(schedCfg)

	schedule, err := scheduler.SweepSchedule()
	if err != nil {
		logger.Error("invalid sweep schedule", "error", err)
		os.Exit(1)
	}

	// sweep loop под advisory lock
	go func() {
		tk := time.NewTicker(5 * time.Second)
		defer tk.Stop()

		var hasLock bool
		defer func() {
			if hasLock {
				_, _ = pool.Exec(context.Background(), "select pg_advisory_unlock($1)", schedLockKey)
			}
		}()

		for {
			select {
			case <-tk.C:
				// пытаемся стать лидером
				if !hasLock {
					var ok bool
					if err := pool.QueryRow(ctx, "select pg_try_advisory_lock($1)", schedLockKey).Scan(&ok); err != nil {
						logger.Error("advisory lock failed", "error", err)
						continue
					}
					hasLock = ok
				}

				if !hasLock {
					// не лидер — пропускаем тик
					continue
				}

				// лидер крутит расписание до остановки процесса
				logger.Info("acquired sweep leadership")
				if err := sched.Run(ctx, schedule); err != nil && ctx.Err() == nil {
					logger.Error("sweep loop exited", "error", err)
				}
				return

			case <-ctx.Done():
				return
			}
		}
	}()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8081"
	if v := os.Getenv("SCHED_PORT"); v != "" {
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
	logger.Info("loanflow-scheduler stopped")
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
