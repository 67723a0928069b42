package analytics

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Herald/internal/domain"
)

func TestBuildKey(t *testing.T) {
	org := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	sched := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	at := time.Date(2024, 3, 10, 9, 0, 0, 0, time.FixedZone("+05:30", 5*3600+1800))

	key := buildKey(org, sched, domain.OutcomeExecuted, at)

	want := "herald:o:11111111-1111-1111-1111-111111111111:s:22222222-2222-2222-2222-222222222222:executed:2024031003"
	if key != want {
		t.Errorf("expected %s, got %s", want, key)
	}
}

func TestHourBuckets(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 42, 0, 0, time.UTC)

	buckets := hourBuckets(now, 3)

	if len(buckets) != 3 {
		t.Fatalf("expected 3 buckets, got %d", len(buckets))
	}
	want := []time.Time{
		time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	for i := range want {
		if !buckets[i].Equal(want[i]) {
			t.Errorf("bucket %d: expected %v, got %v", i, want[i], buckets[i])
		}
	}
}

func TestParseCount(t *testing.T) {
	values := []any{"3", nil, "x", 7}

	if n := parseCount(values, 0); n != 3 {
		t.Errorf("expected 3, got %d", n)
	}
	for _, i := range []int{1, 2, 3, 10} {
		if n := parseCount(values, i); n != 0 {
			t.Errorf("index %d: expected 0, got %d", i, n)
		}
	}
}
