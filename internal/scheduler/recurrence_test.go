package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/shaiso/Herald/internal/domain"
)

func utc(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func mustNext(t *testing.T, calc *Calculator, sched *domain.Schedule, ref time.Time) time.Time {
	t.Helper()
	next, err := calc.NextOccurrence(sched, ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next == nil {
		t.Fatal("expected next occurrence, got nil")
	}
	return *next
}

// --- Daily ---

func TestNextOccurrence_Daily_LaterToday(t *testing.T) {
	calc := NewCalculator(DefaultUTCOffset)
	sched := &domain.Schedule{Frequency: domain.FrequencyDaily, TimeOfDay: "09:00"}

	// 02:00 UTC = 07:30 local
	next := mustNext(t, calc, sched, utc(2024, 3, 10, 2, 0))

	if want := utc(2024, 3, 10, 3, 30); !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestNextOccurrence_Daily_AlreadyPassed(t *testing.T) {
	// 09:05 local, daily в 09:00 → завтра 09:00 local
	calc := NewCalculator(DefaultUTCOffset)
	sched := &domain.Schedule{Frequency: domain.FrequencyDaily, TimeOfDay: "09:00"}

	next := mustNext(t, calc, sched, utc(2024, 3, 10, 3, 35))

	if want := utc(2024, 3, 11, 3, 30); !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
	if next.Location() != time.UTC {
		t.Errorf("expected UTC location, got %v", next.Location())
	}
}

func TestNextOccurrence_Daily_ExactlyAtTime(t *testing.T) {
	calc := NewCalculator(DefaultUTCOffset)
	sched := &domain.Schedule{Frequency: domain.FrequencyDaily, TimeOfDay: "09:00"}

	next := mustNext(t, calc, sched, utc(2024, 3, 10, 3, 30))

	if want := utc(2024, 3, 11, 3, 30); !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestNextOccurrence_Daily_LocalDateAheadOfUTC(t *testing.T) {
	calc := NewCalculator(DefaultUTCOffset)
	sched := &domain.Schedule{Frequency: domain.FrequencyDaily, TimeOfDay: "02:00"}

	// 21:00 UTC 10 марта = 02:30 local 11 марта
	next := mustNext(t, calc, sched, utc(2024, 3, 10, 21, 0))

	// 02:00 local 12 марта = 20:30 UTC 11 марта
	if want := utc(2024, 3, 11, 20, 30); !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestNextOccurrence_Daily_UTCOffset(t *testing.T) {
	calc := NewCalculator(0)
	sched := &domain.Schedule{Frequency: domain.FrequencyDaily, TimeOfDay: "09:00"}

	next := mustNext(t, calc, sched, utc(2024, 3, 10, 8, 0))

	if want := utc(2024, 3, 10, 9, 0); !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

// --- Weekly ---

func TestNextOccurrence_Weekly_NextMonday(t *testing.T) {
	calc := NewCalculator(DefaultUTCOffset)
	// 10 марта 2024 — воскресенье
	sched := &domain.Schedule{Frequency: domain.FrequencyWeekly, TimeOfDay: "10:00", DayOfWeek: 1}

	next := mustNext(t, calc, sched, utc(2024, 3, 10, 2, 0))

	if want := utc(2024, 3, 11, 4, 30); !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestNextOccurrence_Weekly_SameDayPassed(t *testing.T) {
	calc := NewCalculator(DefaultUTCOffset)
	sched := &domain.Schedule{Frequency: domain.FrequencyWeekly, TimeOfDay: "07:00", DayOfWeek: 7}

	// воскресенье 07:30 local
	next := mustNext(t, calc, sched, utc(2024, 3, 10, 2, 0))

	if want := utc(2024, 3, 17, 1, 30); !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestNextOccurrence_Weekly_InvalidDay(t *testing.T) {
	calc := NewCalculator(DefaultUTCOffset)
	sched := &domain.Schedule{Frequency: domain.FrequencyWeekly, TimeOfDay: "07:00", DayOfWeek: 8}

	_, err := calc.NextOccurrence(sched, utc(2024, 3, 10, 2, 0))
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

// --- Monthly ---

func TestNextOccurrence_Monthly_ClampsToLastDay(t *testing.T) {
	calc := NewCalculator(DefaultUTCOffset)
	sched := &domain.Schedule{Frequency: domain.FrequencyMonthly, TimeOfDay: "08:00", DayOfMonth: 31}

	tests := []struct {
		name string
		ref  time.Time
		want time.Time
	}{
		{"leap february", utc(2024, 2, 10, 0, 0), utc(2024, 2, 29, 2, 30)},
		{"february", utc(2025, 2, 1, 0, 0), utc(2025, 2, 28, 2, 30)},
		{"april", utc(2024, 4, 3, 0, 0), utc(2024, 4, 30, 2, 30)},
		{"after january 31", utc(2025, 1, 31, 12, 0), utc(2025, 2, 28, 2, 30)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := mustNext(t, calc, sched, tt.ref)
			if !next.Equal(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, next)
			}
		})
	}
}

func TestNextOccurrence_Monthly_YearRollover(t *testing.T) {
	calc := NewCalculator(DefaultUTCOffset)
	sched := &domain.Schedule{Frequency: domain.FrequencyMonthly, TimeOfDay: "08:00", DayOfMonth: 15}

	next := mustNext(t, calc, sched, utc(2024, 12, 20, 0, 0))

	if want := utc(2025, 1, 15, 2, 30); !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

// --- Once ---

func TestNextOccurrence_Once(t *testing.T) {
	calc := NewCalculator(DefaultUTCOffset)
	at := utc(2024, 5, 1, 10, 0)
	sched := &domain.Schedule{Frequency: domain.FrequencyOnce, OneTimeAt: &at}

	next := mustNext(t, calc, sched, utc(2024, 4, 1, 0, 0))
	if !next.Equal(at) {
		t.Errorf("expected %v, got %v", at, next)
	}

	ran := at
	sched.LastRunAt = &ran

	after, err := calc.NextOccurrence(sched, utc(2024, 5, 1, 10, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after != nil {
		t.Errorf("expected nil after execution, got %v", after)
	}
}

func TestNextOccurrence_Once_MissingInstant(t *testing.T) {
	calc := NewCalculator(DefaultUTCOffset)
	sched := &domain.Schedule{Frequency: domain.FrequencyOnce}

	_, err := calc.NextOccurrence(sched, time.Now())
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

// --- Properties ---

func TestNextOccurrence_StrictlyAfterRef(t *testing.T) {
	calc := NewCalculator(DefaultUTCOffset)
	schedules := []*domain.Schedule{
		{Frequency: domain.FrequencyDaily, TimeOfDay: "00:00"},
		{Frequency: domain.FrequencyDaily, TimeOfDay: "23:59"},
		{Frequency: domain.FrequencyWeekly, TimeOfDay: "12:30", DayOfWeek: 3},
		{Frequency: domain.FrequencyWeekly, TimeOfDay: "05:30", DayOfWeek: 7},
		{Frequency: domain.FrequencyMonthly, TimeOfDay: "18:45", DayOfMonth: 1},
		{Frequency: domain.FrequencyMonthly, TimeOfDay: "06:00", DayOfMonth: 31},
	}

	start := utc(2023, 12, 25, 0, 0)
	for step := 0; step < 24*90; step++ {
		ref := start.Add(time.Duration(step) * 37 * time.Minute)
		for _, sched := range schedules {
			next := mustNext(t, calc, sched, ref)
			if !next.After(ref) {
				t.Fatalf("%s %s: next %v is not after ref %v", sched.Frequency, sched.TimeOfDay, next, ref)
			}
		}
	}
}

func TestNextOccurrence_InvalidTimeOfDay(t *testing.T) {
	calc := NewCalculator(DefaultUTCOffset)

	for _, tod := range []string{"", "9", "25:00", "09:60", "ab:cd"} {
		sched := &domain.Schedule{Frequency: domain.FrequencyDaily, TimeOfDay: tod}
		if _, err := calc.NextOccurrence(sched, time.Now()); !errors.Is(err, ErrConfiguration) {
			t.Errorf("time_of_day %q: expected ErrConfiguration, got %v", tod, err)
		}
	}
}

// --- Offsets ---

func TestParseOffset(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"+05:30", 5*time.Hour + 30*time.Minute, false},
		{"05:30", 5*time.Hour + 30*time.Minute, false},
		{"-03:00", -3 * time.Hour, false},
		{"UTC", 0, false},
		{"", 0, false},
		{"+15:00", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseOffset(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestFormatOffset(t *testing.T) {
	if got := FormatOffset(DefaultUTCOffset); got != "+05:30" {
		t.Errorf("expected +05:30, got %s", got)
	}
	if got := FormatOffset(-3 * time.Hour); got != "-03:00" {
		t.Errorf("expected -03:00, got %s", got)
	}
}

func TestValidateRecurrence(t *testing.T) {
	at := time.Now().Add(time.Hour)

	valid := []*domain.Schedule{
		{Frequency: domain.FrequencyDaily, TimeOfDay: "09:00"},
		{Frequency: domain.FrequencyWeekly, TimeOfDay: "09:00", DayOfWeek: 5},
		{Frequency: domain.FrequencyMonthly, TimeOfDay: "09:00", DayOfMonth: 31},
		{Frequency: domain.FrequencyOnce, OneTimeAt: &at},
	}
	for _, sched := range valid {
		if err := ValidateRecurrence(sched); err != nil {
			t.Errorf("%s: unexpected error: %v", sched.Frequency, err)
		}
	}

	invalid := []*domain.Schedule{
		{Frequency: "hourly", TimeOfDay: "09:00"},
		{Frequency: domain.FrequencyDaily, TimeOfDay: "9am"},
		{Frequency: domain.FrequencyWeekly, TimeOfDay: "09:00"},
		{Frequency: domain.FrequencyMonthly, TimeOfDay: "09:00", DayOfMonth: 32},
		{Frequency: domain.FrequencyOnce},
	}
	for _, sched := range invalid {
		if err := ValidateRecurrence(sched); !errors.Is(err, ErrConfiguration) {
			t.Errorf("%s: expected ErrConfiguration, got %v", sched.Frequency, err)
		}
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in           string
		hour, minute int
		wantErr      bool
	}{
		{"09:00", 9, 0, false},
		{" 23:59 ", 23, 59, false},
		{"09:00:30", 9, 0, false},
		{"09:00:zz", 0, 0, true},
		{"09:00:60", 0, 0, true},
		{"09:00:", 0, 0, true},
		{"24:00", 0, 0, true},
		{"09:60", 0, 0, true},
		{"09", 0, 0, true},
		{"09:00:00:00", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			hour, minute, err := ParseTimeOfDay(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrConfiguration) {
					t.Errorf("expected ErrConfiguration, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if hour != tt.hour || minute != tt.minute {
				t.Errorf("expected %02d:%02d, got %02d:%02d", tt.hour, tt.minute, hour, minute)
			}
		})
	}
}
