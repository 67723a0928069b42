package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/Herald/internal/domain"
)

// DefaultUTCOffset — смещение локального времени владельцев по умолчанию (UTC+05:30).
const DefaultUTCOffset = 5*time.Hour + 30*time.Minute

// Calculator вычисляет следующий момент запуска schedule.
//
// Время суток schedule интерпретируется в фиксированном смещении от UTC,
// общем для всего деплоймента. База часовых поясов не используется,
// переход на летнее время не учитывается.
type Calculator struct {
	loc *time.Location
}

// NewCalculator создаёт Calculator с заданным смещением.
// Смещение округляется до целых минут.
func NewCalculator(offset time.Duration) *Calculator {
	minutes := int(offset.Round(time.Minute) / time.Minute)
	return &Calculator{
		loc: time.FixedZone(FormatOffset(offset), minutes*60),
	}
}

// Location возвращает зону с фиксированным смещением.
func (c *Calculator) Location() *time.Location {
	return c.loc
}

// NextOccurrence возвращает следующий момент запуска в UTC.
//
// Для daily/weekly/monthly результат строго больше ref.
// Для once — OneTimeAt, пока schedule ни разу не выполнялся, и nil после.
// nil без ошибки означает, что следующего запуска нет.
func (c *Calculator) NextOccurrence(sched *domain.Schedule, ref time.Time) (*time.Time, error) {
	if sched.Frequency == domain.FrequencyOnce {
		if sched.OneTimeAt == nil {
			return nil, fmt.Errorf("%w: one_time_at is required for once", ErrConfiguration)
		}
		if sched.LastRunAt != nil {
			return nil, nil
		}
		at := sched.OneTimeAt.UTC()
		return &at, nil
	}

	hour, minute, err := ParseTimeOfDay(sched.TimeOfDay)
	if err != nil {
		return nil, err
	}

	local := ref.In(c.loc)

	var next time.Time
	switch sched.Frequency {
	case domain.FrequencyDaily:
		next = c.nextDaily(local, hour, minute)
	case domain.FrequencyWeekly:
		if sched.DayOfWeek < 1 || sched.DayOfWeek > 7 {
			return nil, fmt.Errorf("%w: day_of_week must be 1-7, got %d", ErrConfiguration, sched.DayOfWeek)
		}
		next = c.nextWeekly(local, sched.DayOfWeek, hour, minute)
	case domain.FrequencyMonthly:
		if sched.DayOfMonth < 1 || sched.DayOfMonth > 31 {
			return nil, fmt.Errorf("%w: day_of_month must be 1-31, got %d", ErrConfiguration, sched.DayOfMonth)
		}
		next = c.nextMonthly(local, sched.DayOfMonth, hour, minute)
	default:
		return nil, fmt.Errorf("%w: unknown frequency %q", ErrConfiguration, sched.Frequency)
	}

	next = next.UTC() // храним в UTC
	return &next, nil
}

// nextDaily — сегодня в hh:mm, либо завтра, если время уже прошло.
func (c *Calculator) nextDaily(ref time.Time, hour, minute int) time.Time {
	candidate := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, c.loc)
	if !candidate.After(ref) {
		candidate = time.Date(ref.Year(), ref.Month(), ref.Day()+1, hour, minute, 0, 0, c.loc)
	}
	return candidate
}

// nextWeekly — ближайший dayOfWeek (1 = понедельник) в hh:mm.
// Если сегодня нужный день, но время прошло — через 7 дней.
func (c *Calculator) nextWeekly(ref time.Time, dayOfWeek, hour, minute int) time.Time {
	target := time.Weekday(dayOfWeek % 7) // 7 → Sunday (0)
	delta := (int(target) - int(ref.Weekday()) + 7) % 7

	candidate := time.Date(ref.Year(), ref.Month(), ref.Day()+delta, hour, minute, 0, 0, c.loc)
	if !candidate.After(ref) {
		candidate = time.Date(ref.Year(), ref.Month(), ref.Day()+delta+7, hour, minute, 0, 0, c.loc)
	}
	return candidate
}

// nextMonthly — dayOfMonth текущего месяца (с обрезкой до последнего дня),
// либо следующего месяца, если момент уже прошёл.
func (c *Calculator) nextMonthly(ref time.Time, dayOfMonth, hour, minute int) time.Time {
	year, month := ref.Year(), ref.Month()

	candidate := time.Date(year, month, clampDay(year, month, dayOfMonth), hour, minute, 0, 0, c.loc)
	if candidate.After(ref) {
		return candidate
	}

	// time.Date нормализует month+1 (декабрь → январь следующего года)
	first := time.Date(year, month+1, 1, 0, 0, 0, 0, c.loc)
	year, month = first.Year(), first.Month()
	return time.Date(year, month, clampDay(year, month, dayOfMonth), hour, minute, 0, 0, c.loc)
}

// clampDay обрезает день до последнего дня месяца.
func clampDay(year int, month time.Month, day int) int {
	last := DaysIn(year, month)
	if day > last {
		return last
	}
	return day
}

// DaysIn возвращает количество дней в месяце.
func DaysIn(year int, month time.Month) int {
	// нулевой день следующего месяца — последний день текущего
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ParseTimeOfDay разбирает "HH:MM" (допускается "HH:MM:SS": секунды проверяются, но не используются).
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, 0, fmt.Errorf("%w: invalid time_of_day %q, expected HH:MM", ErrConfiguration, s)
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: invalid hour in time_of_day %q", ErrConfiguration, s)
	}

	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: invalid minute in time_of_day %q", ErrConfiguration, s)
	}

	if len(parts) == 3 {
		second, err := strconv.Atoi(parts[2])
		if err != nil || second < 0 || second > 59 {
			return 0, 0, fmt.Errorf("%w: invalid second in time_of_day %q", ErrConfiguration, s)
		}
	}

	return hour, minute, nil
}

// ParseOffset разбирает смещение вида "+05:30", "-03:00" или "UTC".
func ParseOffset(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "UTC") || s == "Z" {
		return 0, nil
	}

	sign := time.Duration(1)
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		sign = -1
		s = s[1:]
	}

	hour, minute, err := ParseTimeOfDay(s)
	if err != nil {
		return 0, fmt.Errorf("invalid utc offset %q", s)
	}
	if hour > 14 {
		return 0, fmt.Errorf("utc offset out of range: %q", s)
	}

	return sign * (time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute), nil
}

// FormatOffset форматирует смещение как "+05:30".
func FormatOffset(offset time.Duration) string {
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	minutes := int(offset.Round(time.Minute) / time.Minute)
	return fmt.Sprintf("%c%02d:%02d", sign, minutes/60, minutes%60)
}

// ValidateRecurrence проверяет поля повторения schedule.
// Используется при создании и редактировании через API.
func ValidateRecurrence(sched *domain.Schedule) error {
	if !sched.Frequency.IsValid() {
		return fmt.Errorf("%w: unknown frequency %q", ErrConfiguration, sched.Frequency)
	}

	if sched.Frequency == domain.FrequencyOnce {
		if sched.OneTimeAt == nil {
			return fmt.Errorf("%w: one_time_at is required for once", ErrConfiguration)
		}
		return nil
	}

	if _, _, err := ParseTimeOfDay(sched.TimeOfDay); err != nil {
		return err
	}

	switch sched.Frequency {
	case domain.FrequencyWeekly:
		if sched.DayOfWeek < 1 || sched.DayOfWeek > 7 {
			return fmt.Errorf("%w: day_of_week must be 1-7", ErrConfiguration)
		}
	case domain.FrequencyMonthly:
		if sched.DayOfMonth < 1 || sched.DayOfMonth > 31 {
			return fmt.Errorf("%w: day_of_month must be 1-31", ErrConfiguration)
		}
	}

	return nil
}
