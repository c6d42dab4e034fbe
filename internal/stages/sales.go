package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/Loanflow/internal/depclient"
	"github.com/shaiso/Loanflow/internal/domain"
)

// Generic-оффер для клиентов без персонального предложения.
const (
	fallbackLimit = 25000
	fallbackRate  = 12.5
)

// Sales — этап получения оффера.
//
// Запрашивает предодобренный оффер в offer mart; при отсутствии
// персонального предложения подставляет generic-оффер. Заявки,
// заведомо превышающие двойной лимит, отклоняются сразу —
// до KYC и андеррайтинга.
type Sales struct {
	deps   *depclient.Client
	logger *slog.Logger
}

// NewSales создаёт этап sales.
func NewSales(deps *depclient.Client, logger *slog.Logger) *Sales {
	return &Sales{deps: deps, logger: logger}
}

func (s *Sales) Process(ctx context.Context, snap domain.Snapshot) (*domain.StageResult, error) {
	amount, ok := ctxFloat(snap.Context, domain.CtxRequestedAmount)
	if !ok {
		return nil, missingKey(domain.CtxRequestedAmount)
	}

	limit := float64(fallbackLimit)
	rate := float64(fallbackRate)

	offer, err := s.deps.GetOffer(ctx, snap.CustomerID)
	switch {
	case err == nil:
		limit = offer.PreApprovedLimit
		rate = offer.InterestRate
	case errors.Is(err, depclient.ErrNoOffer):
		s.logger.Info("no pre-approved offer, using generic",
			"customer_id", snap.CustomerID,
		)
	default:
		return nil, err
	}

	if amount > 2*limit {
		return &domain.StageResult{
			Outcome: domain.OutcomeRejected,
			Reason:  fmt.Sprintf("requested amount %.0f is more than 2x the pre-approved limit %.0f", amount, limit),
		}, nil
	}

	return &domain.StageResult{
		Outcome: domain.OutcomeApproved,
		Payload: map[string]any{
			domain.CtxPreApprovedLimit: limit,
			domain.CtxInterestRate:     rate,
		},
	}, nil
}
