package domain

import "errors"

// State — состояние заявки в конвейере обработки.
//
// Жизненный цикл:
//
//	PENDING_SALES → PENDING_VERIFICATION → PENDING_UNDERWRITING → PENDING_SANCTION → SANCTIONED
//	     ↘ REJECTED (на любом этапе при бизнес-отказе)
//	     ↘ FAILED (при исчерпании попыток) → обратно в PENDING_* (retry) или ABANDONED
type State string

const (
	// StatePendingSales — заявка ожидает этап sales (получение оффера).
	StatePendingSales State = "PENDING_SALES"

	// StateSalesDone — этап sales завершён. Метка завершения этапа:
	// используется в history и событиях, заявка в этом состоянии не хранится.
	StateSalesDone State = "SALES_DONE"

	// StatePendingVerification — заявка ожидает KYC-проверку.
	StatePendingVerification State = "PENDING_VERIFICATION"

	// StateVerificationDone — KYC-проверка завершена (метка завершения).
	StateVerificationDone State = "VERIFICATION_DONE"

	// StatePendingUnderwriting — заявка ожидает андеррайтинг.
	StatePendingUnderwriting State = "PENDING_UNDERWRITING"

	// StateUnderwritingDone — андеррайтинг завершён (метка завершения).
	StateUnderwritingDone State = "UNDERWRITING_DONE"

	// StatePendingSanction — заявка ожидает генерацию санкционного письма.
	StatePendingSanction State = "PENDING_SANCTION"

	// StateSanctioned — письмо выпущено, заявка успешно завершена. Терминальное.
	StateSanctioned State = "SANCTIONED"

	// StateRejected — бизнес-отказ на одном из этапов. Терминальное.
	StateRejected State = "REJECTED"

	// StateFailed — этап не удался после всех попыток (транспорт/протокол).
	// НЕ терминальное: восстанавливается через retry оператора или планировщика.
	StateFailed State = "FAILED"

	// StateAbandoned — заявка брошена явным действием оператора
	// или после исчерпания лимита повторных восстановлений. Терминальное.
	StateAbandoned State = "ABANDONED"
)

// Outcome — результат вызова этапного сервиса.
type Outcome string

const (
	// OutcomeApproved — этап пройден, заявка двигается дальше.
	OutcomeApproved Outcome = "APPROVED"

	// OutcomeRejected — бизнес-отказ. Валидный терминальный исход, не ошибка.
	OutcomeRejected Outcome = "REJECTED"

	// OutcomeNeedsInfo — этапу не хватает данных, заявка ставится в очередь повторно.
	OutcomeNeedsInfo Outcome = "NEEDS_INFO"
)

// ErrInvalidTransition — переход не определён в таблице переходов.
var ErrInvalidTransition = errors.New("invalid state transition")

// IsTerminal возвращает true, если из состояния нет автоматических переходов.
func (s State) IsTerminal() bool {
	switch s {
	case StateSanctioned, StateRejected, StateAbandoned:
		return true
	default:
		return false
	}
}

// IsPending возвращает true для состояний, в которых заявку
// подхватывает оркестратор.
func (s State) IsPending() bool {
	switch s {
	case StatePendingSales, StatePendingVerification, StatePendingUnderwriting, StatePendingSanction:
		return true
	default:
		return false
	}
}

// IsValid проверяет, что значение входит в множество состояний конвейера.
func (s State) IsValid() bool {
	switch s {
	case StatePendingSales, StateSalesDone,
		StatePendingVerification, StateVerificationDone,
		StatePendingUnderwriting, StateUnderwritingDone,
		StatePendingSanction, StateSanctioned,
		StateRejected, StateFailed, StateAbandoned:
		return true
	default:
		return false
	}
}

// PendingStates — состояния, в которых заявка доступна оркестратору.
// Порядок фиксирован и используется для round-robin по корзинам.
func PendingStates() []State {
	return []State{
		StatePendingSales,
		StatePendingVerification,
		StatePendingUnderwriting,
		StatePendingSanction,
	}
}

// Transition — чистая функция перехода: (текущее состояние, исход этапа) → следующее состояние.
//
// Кодирует топологию конвейера. Переходы вне таблицы возвращают ErrInvalidTransition.
func Transition(current State, outcome Outcome) (State, error) {
	switch current {
	case StatePendingSales:
		switch outcome {
		case OutcomeApproved:
			return StatePendingVerification, nil
		case OutcomeRejected:
			return StateRejected, nil
		}

	case StatePendingVerification:
		switch outcome {
		case OutcomeApproved:
			return StatePendingUnderwriting, nil
		case OutcomeRejected:
			return StateRejected, nil
		case OutcomeNeedsInfo:
			// Повторная постановка в ту же корзину; лимит повторов
			// контролирует оркестратор через RetryCount.
			return StatePendingVerification, nil
		}

	case StatePendingUnderwriting:
		switch outcome {
		case OutcomeApproved:
			return StatePendingSanction, nil
		case OutcomeRejected:
			return StateRejected, nil
		}

	case StatePendingSanction:
		switch outcome {
		case OutcomeApproved:
			return StateSanctioned, nil
		case OutcomeRejected:
			return StateRejected, nil
		}
	}

	return "", ErrInvalidTransition
}

// Completed возвращает метку завершения этапа для PENDING_* состояния.
// Используется в history и событиях; заявка в DONE-состояниях не хранится,
// переход идёт сразу в следующее PENDING_* (одна запись на этап).
func Completed(pending State) State {
	switch pending {
	case StatePendingSales:
		return StateSalesDone
	case StatePendingVerification:
		return StateVerificationDone
	case StatePendingUnderwriting:
		return StateUnderwritingDone
	case StatePendingSanction:
		return StateSanctioned
	default:
		return pending
	}
}
