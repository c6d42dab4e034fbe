// Loanflow Deps — mock-сервисы внешних зависимостей для локальной
// разработки и интеграционных прогонов:
//   - CRM          :9001 — KYC-профили клиентов
//   - credit bureau :9002 — кредитные скоры
//   - offer mart   :9003 — предодобренные офферы
//
// Данные синтетические и захардкожены в depsvc.NewDirectory.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaiso/Loanflow/internal/depsvc"
	"github.com/shaiso/Loanflow/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting loanflow-deps")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dir := depsvc.NewDirectory()

	services := []struct {
		name    string
		handler http.Handler
		envPort string
		port    string
	}{
		{"crm", depsvc.CRMHandler(dir, logger), "DEP_CRM_PORT", ":9001"},
		{"bureau", depsvc.BureauHandler(dir, logger), "DEP_BUREAU_PORT", ":9002"},
		{"offers", depsvc.OffersHandler(dir, logger), "DEP_OFFERS_PORT", ":9003"},
	}

	servers := make([]*http.Server, 0, len(services))
	for _, svc := range services {
		addr := svc.port
		if v := os.Getenv(svc.envPort); v != "" {
			addr = ":" + v
		}

		server := &http.Server{Addr: addr, Handler: svc.handler}
		servers = append(servers, server)

		go func(name string, server *http.Server) {
			logger.Info("mock service listening", "service", name, "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("mock server error", "service", name, "error", err)
				cancel()
			}
		}(svc.name, server)
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

	logger.Info("loanflow-deps stopped")
}
