package scheduler

import (
	"time"

	"github.com/shaiso/Herald/internal/domain"
)

// Значения окна по умолчанию.
const (
	DefaultTolerance = 5 * time.Minute
	DefaultCooldown  = 10 * time.Minute
)

// Window — параметры отбора due schedules.
type Window struct {
	// Tolerance — симметричный допуск вокруг now: schedule due,
	// если |next_run_at - now| <= Tolerance. Покрывает неточное
	// пробуждение поллера.
	Tolerance time.Duration

	// Cooldown — минимальное время с last_run_at до следующего запуска.
	// Гасит двойное срабатывание поллера и webhook на одной строке.
	// Это эвристика по часам, а не блокировка.
	Cooldown time.Duration
}

// DefaultWindow возвращает окно ±5 минут с cooldown 10 минут.
func DefaultWindow() Window {
	return Window{Tolerance: DefaultTolerance, Cooldown: DefaultCooldown}
}

// IsDue проверяет, нужно ли запускать schedule сейчас.
//
// Schedule due, если он активен, next_run_at задан, и
// next_run_at попадает в окно допуска или порог события превышен,
// и при этом schedule не выполнялся в течение cooldown.
func (w Window) IsDue(sched *domain.Schedule, now time.Time) bool {
	if !sched.IsActive || sched.NextRunAt == nil {
		return false
	}
	if w.InCooldown(sched, now) {
		return false
	}
	return w.inTolerance(*sched.NextRunAt, now) || IsThresholdOverdue(sched, now)
}

// InCooldown возвращает true, если schedule выполнялся менее Cooldown назад.
func (w Window) InCooldown(sched *domain.Schedule, now time.Time) bool {
	if sched.LastRunAt == nil {
		return false
	}
	return now.Sub(*sched.LastRunAt) < w.Cooldown
}

// IsOverdue проверяет, пропущено ли окно запуска: next_run_at раньше
// now - Tolerance. Такие schedules не попадают в due set и ждут
// ручного catch-up или следующего естественного запуска.
func (w Window) IsOverdue(sched *domain.Schedule, now time.Time) bool {
	if !sched.IsActive || sched.NextRunAt == nil {
		return false
	}
	if w.InCooldown(sched, now) {
		return false
	}
	return sched.NextRunAt.Before(now.Add(-w.Tolerance))
}

func (w Window) inTolerance(next, now time.Time) bool {
	diff := next.Sub(now)
	if diff < 0 {
		diff = -diff
	}
	return diff <= w.Tolerance
}

// IsThresholdOverdue проверяет порог для расписаний, срабатывающих по событию:
// с последнего события (или запуска) прошло не меньше ThresholdDays.
func IsThresholdOverdue(sched *domain.Schedule, now time.Time) bool {
	if !sched.IsThresholded() {
		return false
	}
	ref := sched.ThresholdReference()
	if ref == nil {
		return false
	}
	threshold := time.Duration(sched.ThresholdDays) * 24 * time.Hour
	return !now.Before(ref.Add(threshold))
}

// DueSchedules возвращает schedules, которые нужно запустить сейчас.
//
// Функция чистая: каждый schedule оценивается независимо, повторный вызов
// с теми же аргументами возвращает тот же набор.
func DueSchedules(schedules []domain.Schedule, now time.Time, w Window) []domain.Schedule {
	var due []domain.Schedule
	for i := range schedules {
		if w.IsDue(&schedules[i], now) {
			due = append(due, schedules[i])
		}
	}
	return due
}

// OverdueSchedules возвращает активные schedules с пропущенным окном запуска.
func OverdueSchedules(schedules []domain.Schedule, now time.Time, w Window) []domain.Schedule {
	var overdue []domain.Schedule
	for i := range schedules {
		if w.IsOverdue(&schedules[i], now) {
			overdue = append(overdue, schedules[i])
		}
	}
	return overdue
}
