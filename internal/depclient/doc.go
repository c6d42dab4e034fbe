// Package depclient содержит типизированные клиенты внешних
// зависимостей этапных сервисов: CRM, кредитное бюро и offer mart.
//
// Клиенты разделяют таксономию ошибок пакета stageclient
// (Unreachable/Timeout/InvalidResponse), чтобы этапный сервис мог
// единообразно транслировать сбой зависимости в свой ответ:
// retryable-сбои наружу как 5xx, фатальные как протокольную ошибку.
//
// Retry здесь нет намеренно: повтор делает оркестратор на уровне
// вызова этапа, повторный вызов этапа повторит и вызов зависимости.
package depclient
