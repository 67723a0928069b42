package domain

import (
	"time"

	"github.com/google/uuid"
)

// Frequency — вид повторения расписания.
type Frequency string

// Поддерживаемые виды повторения.
const (
	FrequencyOnce    Frequency = "once"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// IsValid проверяет, что вид повторения известен.
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyOnce, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// ActionKind — тип действия, выполняемого по расписанию.
type ActionKind string

// Типы действий.
const (
	// ActionDigest — сбор и суммаризация почты с отправкой дайджеста.
	ActionDigest ActionKind = "digest"

	// ActionCall — исходящий звонок контакту.
	ActionCall ActionKind = "call"
)

// IsValid проверяет, что тип действия известен.
func (a ActionKind) IsValid() bool {
	return a == ActionDigest || a == ActionCall
}

// Schedule — сохранённое определение повторяющейся (или разовой) задачи.
//
// Расписание принадлежит организации и агенту. Время суток задаётся
// в локальном времени владельца (фиксированное смещение от UTC на уровне
// деплоймента), а все моменты времени хранятся в UTC.
//
// NextRunAt — единственный авторитетный момент, с которым сравнивается "сейчас".
type Schedule struct {
	// ID — уникальный идентификатор schedule.
	ID uuid.UUID `json:"id"`

	// OrgID — организация-владелец.
	OrgID uuid.UUID `json:"org_id"`

	// AgentID — агент, от имени которого выполняется действие.
	AgentID uuid.UUID `json:"agent_id"`

	// Name — имя расписания для удобства.
	Name string `json:"name,omitempty"`

	// Frequency — вид повторения: once, daily, weekly, monthly.
	Frequency Frequency `json:"frequency"`

	// TimeOfDay — время суток в формате "HH:MM" (локальное время владельца).
	TimeOfDay string `json:"time_of_day"`

	// DayOfWeek — день недели (1 = понедельник … 7 = воскресенье).
	// Обязателен только для weekly.
	DayOfWeek int `json:"day_of_week,omitempty"`

	// DayOfMonth — день месяца (1–31). Обязателен только для monthly.
	// Если в месяце меньше дней, используется последний день месяца.
	DayOfMonth int `json:"day_of_month,omitempty"`

	// OneTimeAt — момент запуска в UTC. Обязателен только для once.
	OneTimeAt *time.Time `json:"one_time_at,omitempty"`

	// Action — тип действия (digest, call).
	Action ActionKind `json:"action"`

	// Params — параметры действия. Планировщик их не интерпретирует.
	Params map[string]any `json:"params,omitempty"`

	// ThresholdDays — порог "просрочки" в днях для расписаний,
	// срабатывающих по событию (0 — выключено).
	ThresholdDays int `json:"threshold_days,omitempty"`

	// LastEventAt — время последнего события (например, последнего
	// контакта с клиентом), от которого отсчитывается порог.
	LastEventAt *time.Time `json:"last_event_at,omitempty"`

	// IsActive — флаг активности. Разовое расписание выключается
	// после единственного выполнения.
	IsActive bool `json:"is_active"`

	// LastRunAt — время последнего выполнения.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// NextRunAt — время следующего запуска.
	NextRunAt *time.Time `json:"next_run_at,omitempty"`

	// LastError — ошибка последней неудачной попытки.
	// Очищается после успешного выполнения.
	LastError string `json:"last_error,omitempty"`

	// CreatedAt — время создания schedule.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего обновления.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsThresholded возвращает true, если расписание срабатывает по порогу.
func (s *Schedule) IsThresholded() bool {
	return s.ThresholdDays > 0
}

// ThresholdReference возвращает момент, от которого отсчитывается порог:
// более поздний из LastEventAt и LastRunAt.
func (s *Schedule) ThresholdReference() *time.Time {
	ref := s.LastEventAt
	if s.LastRunAt != nil && (ref == nil || s.LastRunAt.After(*ref)) {
		ref = s.LastRunAt
	}
	return ref
}

// RunState — состояние выполнения, записываемое одной атомарной операцией.
//
// NextRunAt == nil означает "следующего запуска нет": прежнее значение
// next_run_at сохраняется, а IsActive должен быть false.
type RunState struct {
	LastRunAt time.Time
	NextRunAt *time.Time
	IsActive  bool
}

// Advance применяет RunState к schedule.
func (s *Schedule) Advance(state RunState) {
	lastRun := state.LastRunAt
	s.LastRunAt = &lastRun
	if state.NextRunAt != nil {
		s.NextRunAt = state.NextRunAt
	}
	// выполнение может только выключить schedule, паузу владельца не снимает
	s.IsActive = s.IsActive && state.IsActive
	s.LastError = ""
	s.UpdatedAt = state.LastRunAt
}
