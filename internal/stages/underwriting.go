package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/shaiso/Loanflow/internal/depclient"
	"github.com/shaiso/Loanflow/internal/domain"
)

// Минимальный кредитный скор для одобрения.
const minCreditScore = 700

// Underwriting — этап андеррайтинга.
//
// Правила в порядке проверки:
//  1. скор < 700 — отказ
//  2. сумма в пределах лимита — одобрение
//  3. сумма больше двойного лимита — отказ
//  4. между 1x и 2x лимита — одобрение, если EMI не превышает
//     половины месячной зарплаты
type Underwriting struct {
	deps   *depclient.Client
	logger *slog.Logger
}

// NewUnderwriting создаёт этап underwriting.
func NewUnderwriting(deps *depclient.Client, logger *slog.Logger) *Underwriting {
	return &Underwriting{deps: deps, logger: logger}
}

func (u *Underwriting) Process(ctx context.Context, snap domain.Snapshot) (*domain.StageResult, error) {
	amount, ok := ctxFloat(snap.Context, domain.CtxRequestedAmount)
	if !ok {
		return nil, missingKey(domain.CtxRequestedAmount)
	}
	limit, ok := ctxFloat(snap.Context, domain.CtxPreApprovedLimit)
	if !ok {
		return nil, missingKey(domain.CtxPreApprovedLimit)
	}
	rate, ok := ctxFloat(snap.Context, domain.CtxInterestRate)
	if !ok {
		return nil, missingKey(domain.CtxInterestRate)
	}
	tenure, ok := ctxInt(snap.Context, domain.CtxTenureMonths)
	if !ok || tenure <= 0 {
		return nil, missingKey(domain.CtxTenureMonths)
	}
	// Зарплата опциональна: без неё доступен только «лёгкий путь»
	// в пределах лимита.
	salary, _ := ctxFloat(snap.Context, domain.CtxMonthlySalary)

	report, err := u.deps.GetCreditReport(ctx, snap.CustomerID)
	if err != nil {
		if errors.Is(err, depclient.ErrUnknownCustomer) {
			return &domain.StageResult{
				Outcome: domain.OutcomeRejected,
				Reason:  "no credit history found",
			}, nil
		}
		return nil, err
	}

	if report.Score < minCreditScore {
		return &domain.StageResult{
			Outcome: domain.OutcomeRejected,
			Reason:  fmt.Sprintf("credit score %d is below the %d minimum", report.Score, minCreditScore),
		}, nil
	}

	monthly := EMI(amount, rate, tenure)

	if amount <= limit {
		return approve(amount, monthly), nil
	}

	if amount > 2*limit {
		return &domain.StageResult{
			Outcome: domain.OutcomeRejected,
			Reason:  fmt.Sprintf("requested amount %.0f is more than 2x the pre-approved limit %.0f", amount, limit),
		}, nil
	}

	// Между 1x и 2x лимита: нужна EMI-проверка против зарплаты.
	if salary <= 0 {
		return &domain.StageResult{
			Outcome: domain.OutcomeRejected,
			Reason:  "salary check required but no salary on record",
		}, nil
	}

	maxEMI := salary * 0.5
	if monthly > maxEMI {
		return &domain.StageResult{
			Outcome: domain.OutcomeRejected,
			Reason:  fmt.Sprintf("EMI %.2f/mo would exceed 50%% of monthly salary (max %.2f)", monthly, maxEMI),
		}, nil
	}

	return approve(amount, monthly), nil
}

func approve(amount, monthly float64) *domain.StageResult {
	return &domain.StageResult{
		Outcome: domain.OutcomeApproved,
		Payload: map[string]any{
			domain.CtxSanctionedAmount: amount,
			domain.CtxEMI:              math.Round(monthly*100) / 100,
		},
	}
}

// EMI вычисляет аннуитетный месячный платёж:
// P*r*(1+r)^n / ((1+r)^n - 1), где r — месячная ставка.
func EMI(principal, annualRatePercent float64, months int) float64 {
	r := annualRatePercent / 12 / 100
	if r == 0 {
		return principal / float64(months)
	}
	pow := math.Pow(1+r, float64(months))
	return principal * r * pow / (pow - 1)
}
