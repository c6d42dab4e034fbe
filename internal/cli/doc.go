// Package cli реализует инструмент командной строки Loanflow.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Loanflow API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// CLI используется для подачи заявок и операторских действий.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Loanflow API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	apps, err := client.ListApplications(cli.ListApplicationsOpts{State: "FAILED"})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: loanflow app list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы вокруг заявки:
//   - application (app): submit, list, show, retry, abandon
//
// Группа создаётся через фабричную функцию NewApplicationCmd,
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
