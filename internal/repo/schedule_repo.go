package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Herald/internal/domain"
)

// Коды ошибок PostgreSQL.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const scheduleColumns = `
	id, org_id, agent_id, name, frequency, time_of_day, day_of_week, day_of_month,
	one_time_at, action, params, threshold_days, last_event_at, is_active,
	last_run_at, next_run_at, last_error, created_at, updated_at`

// ScheduleRepo — репозиторий для работы с schedules.
type ScheduleRepo struct {
	pool *pgxpool.Pool
}

// NewScheduleRepo создаёт новый ScheduleRepo.
func NewScheduleRepo(pool *pgxpool.Pool) *ScheduleRepo {
	return &ScheduleRepo{pool: pool}
}

// Create создаёт новый schedule.
func (r *ScheduleRepo) Create(ctx context.Context, schedule *domain.Schedule) error {
	paramsJSON, err := marshalParams(schedule.Params)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO schedules (` + scheduleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	_, err = r.pool.Exec(ctx, query,
		schedule.ID,
		schedule.OrgID,
		schedule.AgentID,
		nullString(schedule.Name),
		schedule.Frequency,
		nullString(schedule.TimeOfDay),
		nullInt(schedule.DayOfWeek),
		nullInt(schedule.DayOfMonth),
		schedule.OneTimeAt,
		schedule.Action,
		paramsJSON,
		nullInt(schedule.ThresholdDays),
		schedule.LastEventAt,
		schedule.IsActive,
		schedule.LastRunAt,
		schedule.NextRunAt,
		nullString(schedule.LastError),
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgUniqueViolation:
				return ErrAlreadyExists
			case pgForeignKeyViolation:
				return ErrNotFound
			}
		}
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// GetByID возвращает schedule по ID.
func (r *ScheduleRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = $1`

	s, err := scanSchedule(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// List возвращает список schedules с фильтрацией.
func (r *ScheduleRepo) List(ctx context.Context, filter ScheduleFilter) ([]domain.Schedule, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE ($1::uuid IS NULL OR org_id = $1)
		  AND ($2::uuid IS NULL OR agent_id = $2)
		  AND ($3::boolean IS NULL OR is_active = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`
	rows, err := r.pool.Query(ctx, query,
		nullUUID(filter.OrgID),
		nullUUID(filter.AgentID),
		filter.IsActive,
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return collectSchedules(rows)
}

// ListActive возвращает все активные schedules.
//
// Отбор due выполняется в памяти: окно допуска симметрично, а порог
// события зависит от last_event_at, поэтому фильтр по next_run_at
// в SQL не подходит.
func (r *ScheduleRepo) ListActive(ctx context.Context) ([]domain.Schedule, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE is_active = true
		ORDER BY next_run_at ASC NULLS LAST
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active schedules: %w", err)
	}
	return collectSchedules(rows)
}

// Update обновляет редактируемые поля schedule (включая пересчитанный next_run_at).
// Run-state (last_run_at) не меняется.
func (r *ScheduleRepo) Update(ctx context.Context, schedule *domain.Schedule) error {
	paramsJSON, err := marshalParams(schedule.Params)
	if err != nil {
		return err
	}

	query := `
		UPDATE schedules
		SET name = $2, frequency = $3, time_of_day = $4, day_of_week = $5,
		    day_of_month = $6, one_time_at = $7, action = $8, params = $9,
		    threshold_days = $10, is_active = $11, next_run_at = $12,
		    last_error = NULL, updated_at = $13
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		schedule.ID,
		nullString(schedule.Name),
		schedule.Frequency,
		nullString(schedule.TimeOfDay),
		nullInt(schedule.DayOfWeek),
		nullInt(schedule.DayOfMonth),
		schedule.OneTimeAt,
		schedule.Action,
		paramsJSON,
		nullInt(schedule.ThresholdDays),
		schedule.IsActive,
		schedule.NextRunAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет schedule.
func (r *ScheduleRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive включает/выключает schedule.
//
// При включении вызывающий передаёт пересчитанный nextRunAt, чтобы
// пропущенные за время паузы окна не выполнялись задним числом.
// nil оставляет next_run_at без изменений.
func (r *ScheduleRepo) SetActive(ctx context.Context, id uuid.UUID, active bool, nextRunAt *time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE schedules
		SET is_active = $2, next_run_at = COALESCE($3, next_run_at), updated_at = NOW()
		WHERE id = $1
	`, id, active, nextRunAt)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateRunState записывает run-state одной операцией.
//
// last_run_at, next_run_at и is_active меняются вместе, last_error очищается.
// NextRunAt == nil сохраняет прежний next_run_at. is_active может только
// выключиться: пауза, поставленная во время выполнения, не снимается.
func (r *ScheduleRepo) UpdateRunState(ctx context.Context, id uuid.UUID, state domain.RunState) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE schedules
		SET last_run_at = $2,
		    next_run_at = COALESCE($3, next_run_at),
		    is_active = is_active AND $4,
		    last_error = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`, id, state.LastRunAt, state.NextRunAt, state.IsActive)
	if err != nil {
		return fmt.Errorf("update run state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordError сохраняет ошибку последней неудачной попытки.
func (r *ScheduleRepo) RecordError(ctx context.Context, id uuid.UUID, message string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE schedules SET last_error = $2, updated_at = NOW() WHERE id = $1
	`, id, message)
	if err != nil {
		return fmt.Errorf("record error: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Reschedule сдвигает next_run_at с from на to, если значение не изменилось.
// Возвращает false, если строку уже обновил другой проход.
func (r *ScheduleRepo) Reschedule(ctx context.Context, id uuid.UUID, from, to time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE schedules
		SET next_run_at = $3, updated_at = NOW()
		WHERE id = $1 AND is_active = true AND next_run_at = $2
	`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("reschedule: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// MarkEvent фиксирует событие (например, контакт с клиентом) для порога.
// last_event_at только растёт.
func (r *ScheduleRepo) MarkEvent(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE schedules
		SET last_event_at = GREATEST(COALESCE(last_event_at, $2), $2), updated_at = NOW()
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark event: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

// ScheduleFilter — параметры фильтрации schedules.
type ScheduleFilter struct {
	OrgID    *uuid.UUID
	AgentID  *uuid.UUID
	IsActive *bool
	Limit    int
	Offset   int
}

func collectSchedules(rows pgx.Rows) ([]domain.Schedule, error) {
	defer rows.Close()

	var schedules []domain.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *schedule)
	}
	return schedules, rows.Err()
}

// scanSchedule читает строку schedule. pgx.Rows тоже реализует pgx.Row.
func scanSchedule(row pgx.Row) (*domain.Schedule, error) {
	var s domain.Schedule
	var name, timeOfDay, lastError *string
	var dayOfWeek, dayOfMonth, thresholdDays *int
	var paramsJSON []byte

	err := row.Scan(
		&s.ID,
		&s.OrgID,
		&s.AgentID,
		&name,
		&s.Frequency,
		&timeOfDay,
		&dayOfWeek,
		&dayOfMonth,
		&s.OneTimeAt,
		&s.Action,
		&paramsJSON,
		&thresholdDays,
		&s.LastEventAt,
		&s.IsActive,
		&s.LastRunAt,
		&s.NextRunAt,
		&lastError,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}

	s.Name = derefString(name)
	s.TimeOfDay = derefString(timeOfDay)
	s.LastError = derefString(lastError)
	s.DayOfWeek = derefInt(dayOfWeek)
	s.DayOfMonth = derefInt(dayOfMonth)
	s.ThresholdDays = derefInt(thresholdDays)

	if paramsJSON != nil {
		if err := json.Unmarshal(paramsJSON, &s.Params); err != nil {
			return nil, fmt.Errorf("unmarshal params: %w", err)
		}
	}

	return &s, nil
}

func marshalParams(params map[string]any) ([]byte, error) {
	if params == nil {
		params = map[string]any{}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return data, nil
}
