// Package stages реализует четыре этапных сервиса конвейера заявок.
//
// Каждый этап — отдельный HTTP-сервис с единым протоколом:
// POST /process принимает snapshot заявки и возвращает StageResult
// (APPROVED/REJECTED/NEEDS_INFO). Сбои зависимостей транслируются
// в 5xx, чтобы оркестратор повторил вызов; некорректный snapshot — в 422.
//
// Этапы и их зависимости:
//   - sales        — offer mart: предодобренный лимит и ставка,
//     generic-оффер при отсутствии персонального
//   - verification — CRM: KYC-статус клиента; неполный KYC → NEEDS_INFO
//   - underwriting — кредитное бюро: скор, лимитные правила и EMI-проверка
//   - sanction     — CRM: реквизиты клиента для санкционного письма
package stages
