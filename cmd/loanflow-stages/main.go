// Loanflow Stages — четыре этапных HTTP-сервиса в одном бинаре.
//
// Каждый этап слушает свой порт и отвечает на POST /process:
//   - sales        :8001 — получение оффера
//   - verification :8002 — KYC-проверка
//   - underwriting :8003 — кредитное решение
//   - sanction     :8004 — выпуск санкционного письма
//
// В продакшене этапы разворачиваются отдельными процессами; один бинарь
// упрощает локальную раскладку и интеграционные прогоны.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Loanflow/internal/depclient"
	"github.com/shaiso/Loanflow/internal/domain"
	"github.com/shaiso/Loanflow/internal/stages"
	"github.com/shaiso/Loanflow/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting loanflow-stages")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deps := depclient.New(depclient.ConfigFromEnv())

	services := []struct {
		stage   domain.Stage
		proc    stages.Processor
		envPort string
		port    string
	}{
		{domain.StageSales, stages.NewSales(deps, logger), "STAGE_SALES_PORT", ":8001"},
		{domain.StageVerification, stages.NewVerification(deps, logger), "STAGE_VERIFICATION_PORT", ":8002"},
		{domain.StageUnderwriting, stages.NewUnderwriting(deps, logger), "STAGE_UNDERWRITING_PORT", ":8003"},
		{domain.StageSanction, stages.NewSanction(deps, logger), "STAGE_SANCTION_PORT", ":8004"},
	}

	servers := make([]*http.Server, 0, len(services))
	for _, svc := range services {
		addr := svc.port
		if v := os.Getenv(svc.envPort); v != "" {
			addr = ":" + v
		}

		mux := stages.NewMux(svc.stage, svc.proc, logger)
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{Addr: addr, Handler: mux}
		servers = append(servers, server)

		go func(stage domain.Stage, server *http.Server) {
			logger.Info("stage listening", "stage", stage, "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("stage server error", "stage", stage, "error", err)
				cancel()
			}
		}(svc.stage, server)
	}

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	for _, server := range servers {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "addr", server.Addr, "error", err)
		}
	}

	logger.Info("loanflow-stages stopped")
}
