package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/repo"
	"github.com/shaiso/Herald/internal/scheduler"
	"github.com/shaiso/Herald/internal/telemetry"
)

const (
	defaultListLimit  = 50
	maxListLimit      = 500
	defaultStatsHours = 24
	maxStatsHours     = 24 * 7
)

// ListSchedules возвращает список schedules с фильтрацией.
// GET /api/v1/schedules?org_id=...&agent_id=...&active=...&limit=...&offset=...
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := repo.ScheduleFilter{Limit: defaultListLimit}

	for _, p := range []struct {
		name string
		dst  **uuid.UUID
	}{
		{"org_id", &filter.OrgID},
		{"agent_id", &filter.AgentID},
	} {
		if v := query.Get(p.name); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				BadRequest(w, "invalid "+p.name)
				return
			}
			*p.dst = &id
		}
	}

	if v := query.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			BadRequest(w, "invalid active")
			return
		}
		filter.IsActive = &active
	}

	if v := query.Get("limit"); v != "" {
		filter.Limit = min(parseIntOr(v, defaultListLimit), maxListLimit)
	}
	if v := query.Get("offset"); v != "" {
		filter.Offset = max(parseIntOr(v, 0), 0)
	}

	schedules, err := h.schedules.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ScheduleResponse, len(schedules))
	for i := range schedules {
		result[i] = ScheduleFromDomain(&schedules[i])
	}

	List(w, result, len(result))
}

// CreateSchedule создаёт новый schedule для агента.
// POST /api/v1/agents/{id}/schedules
//
// next_run_at вычисляется сразу: schedule без next_run_at никогда не станет due.
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	agentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid agent id")
		return
	}

	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	agent, err := h.agents.GetByID(r.Context(), agentID)
	if HandleRepoError(w, h.logger, err, "agent not found") {
		return
	}

	now := h.now()
	schedule := &domain.Schedule{
		ID:            uuid.New(),
		OrgID:         agent.OrgID,
		AgentID:       agent.ID,
		Name:          req.Name,
		Frequency:     req.Frequency,
		TimeOfDay:     req.TimeOfDay,
		DayOfWeek:     req.DayOfWeek,
		DayOfMonth:    req.DayOfMonth,
		OneTimeAt:     req.OneTimeAt,
		Action:        req.Action,
		Params:        req.Params,
		ThresholdDays: req.ThresholdDays,
		LastEventAt:   req.LastEventAt,
		IsActive:      req.IsActive == nil || *req.IsActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.prepareSchedule(schedule, now); err != nil {
		BadRequest(w, err.Error())
		return
	}

	if err := h.schedules.Create(r.Context(), schedule); err != nil {
		HandleRepoError(w, h.logger, err, "agent not found")
		return
	}

	logger := telemetry.WithAgentID(h.logger, schedule.AgentID.String())
	telemetry.WithScheduleID(logger, schedule.ID.String()).Info("schedule created",
		"frequency", schedule.Frequency,
		"next_run_at", schedule.NextRunAt,
	)

	Created(w, ScheduleFromDomain(schedule))
}

// GetSchedule возвращает schedule по ID.
// GET /api/v1/schedules/{id}
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduleID(w, r)
	if !ok {
		return
	}

	schedule, err := h.schedules.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	Success(w, ScheduleFromDomain(schedule))
}

// UpdateSchedule обновляет schedule.
// PUT /api/v1/schedules/{id}
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduleID(w, r)
	if !ok {
		return
	}

	var req UpdateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	schedule, err := h.schedules.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	recurrenceChanged := req.Frequency != nil || req.TimeOfDay != nil ||
		req.DayOfWeek != nil || req.DayOfMonth != nil || req.OneTimeAt != nil

	if req.Name != nil {
		schedule.Name = *req.Name
	}
	if req.Frequency != nil {
		schedule.Frequency = *req.Frequency
	}
	if req.TimeOfDay != nil {
		schedule.TimeOfDay = *req.TimeOfDay
	}
	if req.DayOfWeek != nil {
		schedule.DayOfWeek = *req.DayOfWeek
	}
	if req.DayOfMonth != nil {
		schedule.DayOfMonth = *req.DayOfMonth
	}
	if req.OneTimeAt != nil {
		schedule.OneTimeAt = req.OneTimeAt
	}
	if req.Action != nil {
		schedule.Action = *req.Action
	}
	if req.Params != nil {
		schedule.Params = *req.Params
	}
	if req.ThresholdDays != nil {
		schedule.ThresholdDays = *req.ThresholdDays
	}

	now := h.now()
	if recurrenceChanged {
		if err := h.prepareSchedule(schedule, now); err != nil {
			BadRequest(w, err.Error())
			return
		}
	} else if err := validateAction(schedule); err != nil {
		BadRequest(w, err.Error())
		return
	}
	schedule.LastError = ""
	schedule.UpdatedAt = now

	if err := h.schedules.Update(r.Context(), schedule); err != nil {
		HandleRepoError(w, h.logger, err, "schedule not found")
		return
	}

	Success(w, ScheduleFromDomain(schedule))
}

// DeleteSchedule удаляет schedule.
// DELETE /api/v1/schedules/{id}
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduleID(w, r)
	if !ok {
		return
	}

	if err := h.schedules.Delete(r.Context(), id); err != nil {
		HandleRepoError(w, h.logger, err, "schedule not found")
		return
	}

	NoContent(w)
}

// SetScheduleActive включает или выключает schedule.
// PUT /api/v1/schedules/{id}/active
//
// При включении next_run_at пересчитывается от текущего момента:
// окна, пропущенные за время паузы, не выполняются.
func (h *Handler) SetScheduleActive(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduleID(w, r)
	if !ok {
		return
	}

	var req SetActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	schedule, err := h.schedules.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	var next *time.Time
	if req.IsActive && !schedule.IsActive {
		if schedule.Frequency == domain.FrequencyOnce && schedule.LastRunAt != nil {
			HandleRepoError(w, h.logger, fmt.Errorf("%w: once schedule has already run", repo.ErrInvalidState), "")
			return
		}
		next, err = h.engine.Calculator().NextOccurrence(schedule, h.now())
		if err != nil {
			InvalidState(w, err.Error())
			return
		}
	}

	if err := h.schedules.SetActive(r.Context(), id, req.IsActive, next); err != nil {
		HandleRepoError(w, h.logger, err, "schedule not found")
		return
	}

	schedule.IsActive = req.IsActive
	if next != nil {
		schedule.NextRunAt = next
	}

	telemetry.WithScheduleID(h.logger, id.String()).Info("schedule toggled",
		"is_active", req.IsActive,
		"next_run_at", schedule.NextRunAt,
	)

	Success(w, ScheduleFromDomain(schedule))
}

// RecordScheduleEvent отмечает событие, от которого отсчитывается порог.
// POST /api/v1/schedules/{id}/events
func (h *Handler) RecordScheduleEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduleID(w, r)
	if !ok {
		return
	}

	var req RecordEventRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequest(w, "invalid request body")
			return
		}
	}

	at := h.now()
	if req.At != nil {
		at = req.At.UTC()
	}

	if err := h.schedules.MarkEvent(r.Context(), id, at); err != nil {
		HandleRepoError(w, h.logger, err, "schedule not found")
		return
	}

	schedule, err := h.schedules.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	Success(w, ScheduleFromDomain(schedule))
}

// GetScheduleStats возвращает почасовую статистику выполнений.
// GET /api/v1/schedules/{id}/stats?hours=...
func (h *Handler) GetScheduleStats(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduleID(w, r)
	if !ok {
		return
	}

	if h.stats == nil {
		Unavailable(w, "execution analytics is not configured")
		return
	}

	hours := defaultStatsHours
	if v := r.URL.Query().Get("hours"); v != "" {
		hours = parseIntOr(v, defaultStatsHours)
		if hours < 1 || hours > maxStatsHours {
			BadRequest(w, fmt.Sprintf("hours must be between 1 and %d", maxStatsHours))
			return
		}
	}

	schedule, err := h.schedules.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	stats, err := h.stats.Stats(r.Context(), schedule.OrgID, schedule.ID, hours, h.now())
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, stats)
}

// RunSchedule выполняет schedule немедленно.
// POST /api/v1/schedules/{id}/run
//
// Итог выполнения возвращается с 200 даже при ошибке действия:
// ошибка записана в last_error, а run-state уже продвинут.
func (h *Handler) RunSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduleID(w, r)
	if !ok {
		return
	}

	outcome, err := h.engine.RunNow(r.Context(), id, domain.SurfaceManual)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	resp := RunFromOutcome(id, outcome)
	if schedule, err := h.schedules.GetByID(r.Context(), id); err == nil {
		s := ScheduleFromDomain(schedule)
		resp.Schedule = &s
	}

	Success(w, resp)
}

// CatchUpSchedules выполняет все schedules с пропущенным окном.
// POST /api/v1/schedules/catch-up
func (h *Handler) CatchUpSchedules(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.CatchUp(r.Context(), domain.SurfaceManual)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, PassFromResult(result, h.now()))
}

// --- Helpers ---

// prepareSchedule проверяет поля и вычисляет next_run_at.
func (h *Handler) prepareSchedule(schedule *domain.Schedule, now time.Time) error {
	if err := validateAction(schedule); err != nil {
		return err
	}
	if err := scheduler.ValidateRecurrence(schedule); err != nil {
		return err
	}

	if schedule.Frequency == domain.FrequencyOnce {
		if !schedule.OneTimeAt.After(now) {
			return fmt.Errorf("%w: one_time_at must be in the future", scheduler.ErrConfiguration)
		}
		// разовый schedule с новым моментом запуска выполняется заново
		schedule.LastRunAt = nil
	}

	next, err := h.engine.Calculator().NextOccurrence(schedule, now)
	if err != nil {
		return err
	}
	schedule.NextRunAt = next
	return nil
}

func validateAction(schedule *domain.Schedule) error {
	if !schedule.Action.IsValid() {
		return fmt.Errorf("%w: unknown action %q", scheduler.ErrConfiguration, schedule.Action)
	}
	if schedule.ThresholdDays < 0 {
		return fmt.Errorf("%w: threshold_days must not be negative", scheduler.ErrConfiguration)
	}
	return nil
}

func scheduleID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return uuid.Nil, false
	}
	return id, true
}

func parseIntOr(s string, defaultVal int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return n
}
