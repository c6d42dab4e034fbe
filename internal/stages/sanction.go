package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shaiso/Loanflow/internal/depclient"
	"github.com/shaiso/Loanflow/internal/domain"
)

// Sanction — этап выпуска санкционного письма.
//
// Подтягивает реквизиты клиента из CRM, формирует текст письма
// и (если настроен каталог) сохраняет его на диск. Ссылка на письмо
// уходит в контекст заявки.
type Sanction struct {
	deps   *depclient.Client
	logger *slog.Logger

	// outputDir — каталог для писем; пустая строка отключает запись.
	outputDir string
}

// NewSanction создаёт этап sanction. Каталог писем берётся
// из LETTER_DIR; пустое значение отключает запись на диск.
func NewSanction(deps *depclient.Client, logger *slog.Logger) *Sanction {
	return &Sanction{
		deps:      deps,
		logger:    logger,
		outputDir: os.Getenv("LETTER_DIR"),
	}
}

func (s *Sanction) Process(ctx context.Context, snap domain.Snapshot) (*domain.StageResult, error) {
	amount, ok := ctxFloat(snap.Context, domain.CtxSanctionedAmount)
	if !ok {
		return nil, missingKey(domain.CtxSanctionedAmount)
	}
	rate, ok := ctxFloat(snap.Context, domain.CtxInterestRate)
	if !ok {
		return nil, missingKey(domain.CtxInterestRate)
	}
	tenure, ok := ctxInt(snap.Context, domain.CtxTenureMonths)
	if !ok || tenure <= 0 {
		return nil, missingKey(domain.CtxTenureMonths)
	}

	profile, err := s.deps.GetCustomerProfile(ctx, snap.CustomerID)
	if err != nil {
		if errors.Is(err, depclient.ErrUnknownCustomer) {
			// Заявка прошла verification, но клиент исчез из CRM.
			return &domain.StageResult{
				Outcome: domain.OutcomeRejected,
				Reason:  fmt.Sprintf("customer not found in CRM (ID: %s)", snap.CustomerID),
			}, nil
		}
		return nil, err
	}

	issuedAt := time.Now().UTC()
	ref := letterRef(snap, issuedAt)
	letter := composeLetter(profile, amount, rate, tenure, issuedAt)

	if s.outputDir != "" {
		path := filepath.Join(s.outputDir, ref+".txt")
		if err := os.WriteFile(path, []byte(letter), 0o644); err != nil {
			return nil, fmt.Errorf("write sanction letter: %w", err)
		}
		s.logger.Info("sanction letter written",
			"application_id", snap.ApplicationID,
			"path", path,
		)
	}

	return &domain.StageResult{
		Outcome: domain.OutcomeApproved,
		Payload: map[string]any{
			domain.CtxLetterRef: ref,
			"letter_issued_at":  issuedAt.Format(time.RFC3339),
		},
	}, nil
}

// letterRef — стабильный идентификатор письма:
// SL-<первый блок UUID заявки>-<дата выпуска>.
func letterRef(snap domain.Snapshot, issuedAt time.Time) string {
	short := strings.SplitN(snap.ApplicationID.String(), "-", 2)[0]
	return fmt.Sprintf("SL-%s-%s", strings.ToUpper(short), issuedAt.Format("20060102"))
}

func composeLetter(p *depclient.CustomerProfile, amount, rate float64, tenure int, issuedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Loan Sanction Letter\n\n")
	fmt.Fprintf(&b, "Date: %s\n\n", issuedAt.Format("02-Jan-2006"))
	fmt.Fprintf(&b, "To,\n%s\n%s\nPhone: %s\n\n", p.Name, p.Address, p.Phone)
	fmt.Fprintf(&b, "Subject: Sanction of Personal Loan\n\n")
	fmt.Fprintf(&b, "Dear Sir/Madam,\n\n")
	fmt.Fprintf(&b, "We are pleased to inform you that your personal loan has been sanctioned:\n\n")
	fmt.Fprintf(&b, "  Loan Amount:          %.2f\n", amount)
	fmt.Fprintf(&b, "  Annual Interest Rate: %.2f%%\n", rate)
	fmt.Fprintf(&b, "  Loan Tenure:          %d months\n\n", tenure)
	fmt.Fprintf(&b, "This offer is valid for 7 days.\n\nSincerely,\nYour Loan Team\n")
	return b.String()
}
