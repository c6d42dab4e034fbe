package domain

import "github.com/google/uuid"

// Stage — один этап обработки заявки, обслуживаемый отдельным сервисом.
type Stage string

const (
	StageSales        Stage = "sales"
	StageVerification Stage = "verification"
	StageUnderwriting Stage = "underwriting"
	StageSanction     Stage = "sanction"
)

// Stages возвращает этапы в порядке конвейера.
func Stages() []Stage {
	return []Stage{StageSales, StageVerification, StageUnderwriting, StageSanction}
}

// StageFor возвращает этап, обслуживающий данное PENDING_* состояние.
func StageFor(s State) (Stage, bool) {
	switch s {
	case StatePendingSales:
		return StageSales, true
	case StatePendingVerification:
		return StageVerification, true
	case StatePendingUnderwriting:
		return StageUnderwriting, true
	case StatePendingSanction:
		return StageSanction, true
	default:
		return "", false
	}
}

// Snapshot — неизменяемый срез заявки, передаваемый этапному сервису.
//
// Содержит минимум, который нужен этапу: идентификаторы и накопленный
// контекст (выходы предыдущих этапов). Оркестратор не мутирует snapshot
// после отправки — на одну заявку в полёте всегда не больше одного вызова.
type Snapshot struct {
	ApplicationID uuid.UUID      `json:"application_id"`
	CustomerID    string         `json:"customer_id"`
	State         State          `json:"state"`
	Context       map[string]any `json:"context,omitempty"`
}

// StageResult — результат вызова этапного сервиса.
//
// Payload — этапо-специфичные выходы (лимит оффера, одобренная сумма,
// ссылка на письмо); оркестратор складывает их в контекст заявки.
type StageResult struct {
	Outcome Outcome        `json:"outcome"`
	Payload map[string]any `json:"payload,omitempty"`

	// Reason — человекочитаемое объяснение исхода (для REJECTED/NEEDS_INFO).
	Reason string `json:"reason,omitempty"`
}

// Ключи контекста заявки, которыми обмениваются этапы.
const (
	CtxRequestedAmount  = "requested_amount"
	CtxTenureMonths     = "tenure_months"
	CtxMonthlySalary    = "monthly_salary"
	CtxPreApprovedLimit = "pre_approved_limit"
	CtxInterestRate     = "interest_rate"
	CtxKYCName          = "kyc_name"
	CtxSanctionedAmount = "sanctioned_amount"
	CtxEMI              = "emi"
	CtxLetterRef        = "letter_ref"
)
