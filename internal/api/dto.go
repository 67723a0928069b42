package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/scheduler"
)

// Schedule DTOs

// CreateScheduleRequest — запрос на создание schedule.
type CreateScheduleRequest struct {
	Name          string            `json:"name,omitempty"`
	Frequency     domain.Frequency  `json:"frequency"`
	TimeOfDay     string            `json:"time_of_day,omitempty"`
	DayOfWeek     int               `json:"day_of_week,omitempty"`
	DayOfMonth    int               `json:"day_of_month,omitempty"`
	OneTimeAt     *time.Time        `json:"one_time_at,omitempty"`
	Action        domain.ActionKind `json:"action"`
	Params        map[string]any    `json:"params,omitempty"`
	ThresholdDays int               `json:"threshold_days,omitempty"`
	LastEventAt   *time.Time        `json:"last_event_at,omitempty"`
	IsActive      *bool             `json:"is_active,omitempty"` // default: true
}

// UpdateScheduleRequest — запрос на обновление schedule.
// Изменение полей повторения пересчитывает next_run_at.
type UpdateScheduleRequest struct {
	Name          *string            `json:"name,omitempty"`
	Frequency     *domain.Frequency  `json:"frequency,omitempty"`
	TimeOfDay     *string            `json:"time_of_day,omitempty"`
	DayOfWeek     *int               `json:"day_of_week,omitempty"`
	DayOfMonth    *int               `json:"day_of_month,omitempty"`
	OneTimeAt     *time.Time         `json:"one_time_at,omitempty"`
	Action        *domain.ActionKind `json:"action,omitempty"`
	Params        *map[string]any    `json:"params,omitempty"`
	ThresholdDays *int               `json:"threshold_days,omitempty"`
}

// SetActiveRequest — запрос на включение/выключение.
type SetActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// RecordEventRequest — отметка события для порогового schedule.
// Без at используется текущее время.
type RecordEventRequest struct {
	At *time.Time `json:"at,omitempty"`
}

// ScheduleResponse — ответ с schedule.
type ScheduleResponse struct {
	ID            uuid.UUID         `json:"id"`
	OrgID         uuid.UUID         `json:"org_id"`
	AgentID       uuid.UUID         `json:"agent_id"`
	Name          string            `json:"name,omitempty"`
	Frequency     domain.Frequency  `json:"frequency"`
	TimeOfDay     string            `json:"time_of_day,omitempty"`
	DayOfWeek     int               `json:"day_of_week,omitempty"`
	DayOfMonth    int               `json:"day_of_month,omitempty"`
	OneTimeAt     *time.Time        `json:"one_time_at,omitempty"`
	Action        domain.ActionKind `json:"action"`
	Params        map[string]any    `json:"params,omitempty"`
	ThresholdDays int               `json:"threshold_days,omitempty"`
	LastEventAt   *time.Time        `json:"last_event_at,omitempty"`
	IsActive      bool              `json:"is_active"`
	LastRunAt     *time.Time        `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time        `json:"next_run_at,omitempty"`
	LastError     string            `json:"last_error,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// ScheduleFromDomain конвертирует domain.Schedule в ScheduleResponse.
func ScheduleFromDomain(s *domain.Schedule) ScheduleResponse {
	if s == nil {
		return ScheduleResponse{}
	}
	return ScheduleResponse{
		ID:            s.ID,
		OrgID:         s.OrgID,
		AgentID:       s.AgentID,
		Name:          s.Name,
		Frequency:     s.Frequency,
		TimeOfDay:     s.TimeOfDay,
		DayOfWeek:     s.DayOfWeek,
		DayOfMonth:    s.DayOfMonth,
		OneTimeAt:     s.OneTimeAt,
		Action:        s.Action,
		Params:        s.Params,
		ThresholdDays: s.ThresholdDays,
		LastEventAt:   s.LastEventAt,
		IsActive:      s.IsActive,
		LastRunAt:     s.LastRunAt,
		NextRunAt:     s.NextRunAt,
		LastError:     s.LastError,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

// Execution DTOs

// RunResponse — итог ручного запуска.
type RunResponse struct {
	ScheduleID uuid.UUID          `json:"schedule_id"`
	Outcome    domain.OutcomeKind `json:"outcome"`
	DidWork    bool               `json:"did_work"`
	Error      string             `json:"error,omitempty"`
	Schedule   *ScheduleResponse  `json:"schedule,omitempty"`
}

// RunFromOutcome конвертирует scheduler.Outcome в RunResponse.
func RunFromOutcome(id uuid.UUID, o scheduler.Outcome) RunResponse {
	resp := RunResponse{ScheduleID: id, Outcome: o.Kind, DidWork: o.DidWork}
	if o.Err != nil {
		resp.Error = o.Err.Error()
	}
	return resp
}

// PassResponse — итог прохода (catch-up).
type PassResponse struct {
	Due         int       `json:"due"`
	Executed    int       `json:"executed"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	Abandoned   int       `json:"abandoned"`
	Deferred    int       `json:"deferred"`
	Rescheduled int       `json:"rescheduled"`
	Timestamp   time.Time `json:"timestamp"`
}

// PassFromResult конвертирует scheduler.PassResult в PassResponse.
func PassFromResult(r scheduler.PassResult, at time.Time) PassResponse {
	return PassResponse{
		Due:         r.Due,
		Executed:    r.Executed,
		Skipped:     r.Skipped,
		Failed:      r.Failed,
		Abandoned:   r.Abandoned,
		Deferred:    r.Deferred,
		Rescheduled: r.Rescheduled,
		Timestamp:   at,
	}
}

// Webhook DTOs

// TriggerRequest — тело webhook (ключ можно передать вместо заголовка).
type TriggerRequest struct {
	APIKey string `json:"api_key,omitempty"`
}

// TriggerResponse — ответ webhook. Отдаётся без обёртки data.
type TriggerResponse struct {
	ExecutedCount int       `json:"executed_count"`
	Timestamp     time.Time `json:"timestamp"`
}
