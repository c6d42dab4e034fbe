package stageclient

import (
	"fmt"
	"os"

	"github.com/shaiso/Loanflow/internal/domain"
)

// Registry — статический реестр stage → endpoint.
//
// Разрешается один раз при старте оркестратора; порты по умолчанию
// совпадают с раскладкой этапных сервисов в loanflow-stages.
type Registry struct {
	endpoints map[domain.Stage]string
}

// Переменные окружения и адреса по умолчанию для этапных сервисов.
var stageDefaults = []struct {
	stage    domain.Stage
	envVar   string
	fallback string
}{
	{domain.StageSales, "STAGE_SALES_URL", "http://127.0.0.1:8001"},
	{domain.StageVerification, "STAGE_VERIFICATION_URL", "http://127.0.0.1:8002"},
	{domain.StageUnderwriting, "STAGE_UNDERWRITING_URL", "http://127.0.0.1:8003"},
	{domain.StageSanction, "STAGE_SANCTION_URL", "http://127.0.0.1:8004"},
}

// NewRegistry создаёт реестр с явными endpoints.
func NewRegistry(endpoints map[domain.Stage]string) *Registry {
	eps := make(map[domain.Stage]string, len(endpoints))
	for s, url := range endpoints {
		eps[s] = url
	}
	return &Registry{endpoints: eps}
}

// NewRegistryFromEnv собирает реестр из переменных окружения
// с локальными адресами по умолчанию.
func NewRegistryFromEnv() *Registry {
	eps := make(map[domain.Stage]string, len(stageDefaults))
	for _, d := range stageDefaults {
		url := os.Getenv(d.envVar)
		if url == "" {
			url = d.fallback
		}
		eps[d.stage] = url
	}
	return &Registry{endpoints: eps}
}

// Endpoint возвращает базовый URL сервиса этапа.
func (r *Registry) Endpoint(stage domain.Stage) (string, error) {
	url, ok := r.endpoints[stage]
	if !ok || url == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}
	return url, nil
}
