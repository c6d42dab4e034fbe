package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/Loanflow/internal/depclient"
	"github.com/shaiso/Loanflow/internal/domain"
)

// Verification — этап KYC-проверки.
//
// Сверяет клиента с CRM. Единственный этап, которому разрешён
// исход NEEDS_INFO: неполный KYC возвращает заявку в очередь,
// пока клиент не донесёт документы.
type Verification struct {
	deps   *depclient.Client
	logger *slog.Logger
}

// NewVerification создаёт этап verification.
func NewVerification(deps *depclient.Client, logger *slog.Logger) *Verification {
	return &Verification{deps: deps, logger: logger}
}

func (v *Verification) Process(ctx context.Context, snap domain.Snapshot) (*domain.StageResult, error) {
	profile, err := v.deps.GetCustomerProfile(ctx, snap.CustomerID)
	if err != nil {
		if errors.Is(err, depclient.ErrUnknownCustomer) {
			return &domain.StageResult{
				Outcome: domain.OutcomeRejected,
				Reason:  fmt.Sprintf("customer not found in CRM (ID: %s)", snap.CustomerID),
			}, nil
		}
		return nil, err
	}

	switch profile.KYCStatus {
	case depclient.KYCComplete:
		return &domain.StageResult{
			Outcome: domain.OutcomeApproved,
			Payload: map[string]any{
				domain.CtxKYCName:       profile.Name,
				domain.CtxMonthlySalary: profile.MonthlySalary,
			},
		}, nil

	case depclient.KYCIncomplete:
		return &domain.StageResult{
			Outcome: domain.OutcomeNeedsInfo,
			Reason:  "KYC is incomplete, additional documents required",
		}, nil

	default:
		return &domain.StageResult{
			Outcome: domain.OutcomeRejected,
			Reason:  fmt.Sprintf("unknown KYC status %q", profile.KYCStatus),
		}, nil
	}
}
