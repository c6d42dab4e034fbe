package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Loanflow/internal/domain"
)

// ApplicationRepo — хранилище записей заявок с optimistic-versioning.
//
// Save — единственный путь мутации: UPDATE с проверкой version плюс
// append ровно одной записи истории в одной транзакции. Несовпадение
// версии возвращает ErrVersionConflict, history никогда не правится.
type ApplicationRepo struct {
	pool *pgxpool.Pool
}

// NewApplicationRepo создаёт новый ApplicationRepo.
func NewApplicationRepo(pool *pgxpool.Pool) *ApplicationRepo {
	return &ApplicationRepo{pool: pool}
}

const applicationColumns = `
	id, customer_id, state, failed_from, last_error, version,
	retry_count, context, created_at, updated_at
`

// Create создаёт новую заявку (version = 1, без записи истории:
// длина истории равна числу сохранённых переходов).
func (r *ApplicationRepo) Create(ctx context.Context, app *domain.Application) error {
	contextJSON, err := json.Marshal(app.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	query := `
		INSERT INTO applications (id, customer_id, state, failed_from, last_error,
		                          version, retry_count, context, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.pool.Exec(ctx, query,
		app.ID,
		app.CustomerID,
		app.State,
		nullState(app.FailedFrom),
		nullString(app.LastError),
		app.Version,
		app.RetryCount,
		contextJSON,
		app.CreatedAt,
		app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

// GetByID возвращает заявку по ID.
func (r *ApplicationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	return scanApplication(r.pool.QueryRow(ctx, query, id))
}

// Save сохраняет переход заявки с проверкой expected_version и
// добавляет одну запись истории. На успехе app.Version = expected+1.
//
// Возвращает ErrVersionConflict, если версия в БД уже не expected —
// заявку продвинул другой worker или оператор.
func (r *ApplicationRepo) Save(ctx context.Context, app *domain.Application, expectedVersion int64, entry domain.HistoryEntry) error {
	contextJSON, err := json.Marshal(app.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	newVersion := expectedVersion + 1

	query := `
		UPDATE applications
		SET state = $3, failed_from = $4, last_error = $5, version = $6,
		    retry_count = $7, context = $8, updated_at = $9
		WHERE id = $1 AND version = $2
	`
	result, err := tx.Exec(ctx, query,
		app.ID,
		expectedVersion,
		app.State,
		nullState(app.FailedFrom),
		nullString(app.LastError),
		newVersion,
		app.RetryCount,
		contextJSON,
		app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Различаем "нет записи" и "версия уехала"
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)`, app.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check existence: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	historyQuery := `
		INSERT INTO application_history (application_id, seq, state_entered, outcome, attempts, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = tx.Exec(ctx, historyQuery,
		app.ID,
		newVersion,
		entry.StateEntered,
		entry.Outcome,
		entry.Attempts,
		nullString(entry.Detail),
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	app.Version = newVersion
	return nil
}

// ListEligible возвращает заявки в заданном состоянии, доступные
// для подхвата оркестратором. Старые — первыми.
func (r *ApplicationRepo) ListEligible(ctx context.Context, state domain.State, limit int) ([]domain.Application, error) {
	query := `
		SELECT ` + applicationColumns + `
		FROM applications
		WHERE state = $1
		ORDER BY updated_at ASC
		LIMIT $2
	`
	return r.queryApplications(ctx, query, state, limit)
}

// ListFailed возвращает FAILED-заявки, «остывшие» не позже cutoff —
// кандидаты для планового восстановления.
func (r *ApplicationRepo) ListFailed(ctx context.Context, cutoff time.Time, limit int) ([]domain.Application, error) {
	query := `
		SELECT ` + applicationColumns + `
		FROM applications
		WHERE state = 'FAILED' AND updated_at <= $1
		ORDER BY updated_at ASC
		LIMIT $2
	`
	return r.queryApplications(ctx, query, cutoff, limit)
}

// List возвращает список заявок с фильтрацией.
func (r *ApplicationRepo) List(ctx context.Context, filter Filter) ([]domain.Application, error) {
	query := `
		SELECT ` + applicationColumns + `
		FROM applications
		WHERE ($1::text IS NULL OR state = $1)
		  AND ($2::text IS NULL OR customer_id = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	return r.queryApplications(ctx, query,
		nullString(string(filter.State)),
		nullString(filter.CustomerID),
		filter.Limit,
		filter.Offset,
	)
}

// History возвращает записи истории заявки в порядке добавления.
func (r *ApplicationRepo) History(ctx context.Context, id uuid.UUID) ([]domain.HistoryEntry, error) {
	query := `
		SELECT application_id, seq, state_entered, outcome, attempts, detail, created_at
		FROM application_history
		WHERE application_id = $1
		ORDER BY seq ASC
	`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		var detail *string
		err := rows.Scan(&e.ApplicationID, &e.Seq, &e.StateEntered, &e.Outcome, &e.Attempts, &detail, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if detail != nil {
			e.Detail = *detail
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Helpers ---

// Filter — параметры фильтрации заявок.
type Filter struct {
	State      domain.State
	CustomerID string
	Limit      int
	Offset     int
}

func (r *ApplicationRepo) queryApplications(ctx context.Context, query string, args ...any) ([]domain.Application, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	defer rows.Close()

	var apps []domain.Application
	for rows.Next() {
		app, err := scanApplicationRow(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}
	return apps, rows.Err()
}

func scanApplication(row pgx.Row) (*domain.Application, error) {
	app, err := scanRow(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return app, err
}

func scanApplicationRow(rows pgx.Rows) (*domain.Application, error) {
	return scanRow(rows.Scan)
}

func scanRow(scan func(...any) error) (*domain.Application, error) {
	var app domain.Application
	var contextJSON []byte
	var failedFrom, lastError *string

	err := scan(
		&app.ID,
		&app.CustomerID,
		&app.State,
		&failedFrom,
		&lastError,
		&app.Version,
		&app.RetryCount,
		&contextJSON,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan application: %w", err)
	}

	if contextJSON != nil {
		if err := json.Unmarshal(contextJSON, &app.Context); err != nil {
			return nil, fmt.Errorf("unmarshal context: %w", err)
		}
	}
	if failedFrom != nil {
		app.FailedFrom = domain.State(*failedFrom)
	}
	if lastError != nil {
		app.LastError = *lastError
	}

	return &app, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullState возвращает nil для пустого состояния.
func nullState(s domain.State) *string {
	if s == "" {
		return nil
	}
	v := string(s)
	return &v
}
