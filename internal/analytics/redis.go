// Package analytics ведёт почасовые счётчики итогов выполнения schedules в Redis.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Herald/internal/domain"
)

// DefaultRetention — срок хранения почасовых счётчиков.
const DefaultRetention = 7 * 24 * time.Hour

var outcomes = []domain.OutcomeKind{
	domain.OutcomeExecuted,
	domain.OutcomeSkipped,
	domain.OutcomeFailed,
	domain.OutcomeAbandoned,
}

// RedisRecorder учитывает выполнения: INCR почасового ключа + EXPIRE.
type RedisRecorder struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisRecorder создаёт RedisRecorder. retention <= 0 — DefaultRetention.
func NewRedisRecorder(client *redis.Client, retention time.Duration) *RedisRecorder {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisRecorder{client: client, retention: retention}
}

// Record увеличивает счётчик итога в часе выполнения.
func (r *RedisRecorder) Record(ctx context.Context, exec domain.Execution) error {
	key := buildKey(exec.OrgID, exec.ScheduleID, exec.Outcome, exec.At)

	pipe := r.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, r.retention)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// HourStats — счётчики одного часа.
type HourStats struct {
	Hour   time.Time        `json:"hour"`
	Counts map[string]int64 `json:"counts"`
}

// Stats — счётчики schedule за последние часы.
type Stats struct {
	ScheduleID uuid.UUID        `json:"schedule_id"`
	Totals     map[string]int64 `json:"totals"`
	Hours      []HourStats      `json:"hours"`
}

// Stats возвращает счётчики за hours часов, заканчивая часом now.
func (r *RedisRecorder) Stats(ctx context.Context, orgID, scheduleID uuid.UUID, hours int, now time.Time) (*Stats, error) {
	if hours <= 0 {
		hours = 24
	}

	buckets := hourBuckets(now, hours)

	keys := make([]string, 0, len(buckets)*len(outcomes))
	for _, hour := range buckets {
		for _, outcome := range outcomes {
			keys = append(keys, buildKey(orgID, scheduleID, outcome, hour))
		}
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	stats := &Stats{ScheduleID: scheduleID, Totals: make(map[string]int64)}
	for i, hour := range buckets {
		hs := HourStats{Hour: hour, Counts: make(map[string]int64)}
		for j, outcome := range outcomes {
			n := parseCount(values, i*len(outcomes)+j)
			if n == 0 {
				continue
			}
			hs.Counts[outcome.Label()] = n
			stats.Totals[outcome.Label()] += n
		}
		stats.Hours = append(stats.Hours, hs)
	}
	return stats, nil
}

func parseCount(values []any, i int) int64 {
	if i >= len(values) || values[i] == nil {
		return 0
	}
	s, ok := values[i].(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// hourBuckets возвращает начала часов от самого раннего к now.
func hourBuckets(now time.Time, hours int) []time.Time {
	end := now.UTC().Truncate(time.Hour)
	buckets := make([]time.Time, hours)
	for i := 0; i < hours; i++ {
		buckets[i] = end.Add(-time.Duration(hours-1-i) * time.Hour)
	}
	return buckets
}

func buildKey(orgID, scheduleID uuid.UUID, outcome domain.OutcomeKind, t time.Time) string {
	return fmt.Sprintf("herald:o:%s:s:%s:%s:%s", orgID, scheduleID, outcome.Label(), t.UTC().Format("2006010215"))
}
