package scheduler

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// DefaultFailureBackoff — минимальная пауза между повторами после ошибки.
const DefaultFailureBackoff = 2 * time.Minute

// backoffGate ограничивает повторы schedules после неудачных попыток.
//
// После ошибки schedule остаётся due (run-state не продвигается), и без
// ограничения каждый проход поллера и каждый вызов webhook повторял бы его.
// Для каждого упавшего schedule заводится limiter с одним токеном на интервал.
// Состояние локально для процесса.
type backoffGate struct {
	mu       sync.Mutex
	interval time.Duration
	limiters map[uuid.UUID]*rate.Limiter
}

func newBackoffGate(interval time.Duration) *backoffGate {
	return &backoffGate{
		interval: interval,
		limiters: make(map[uuid.UUID]*rate.Limiter),
	}
}

// Allow возвращает true, если schedule можно выполнять в момент now.
func (g *backoffGate) Allow(id uuid.UUID, now time.Time) bool {
	if g.interval <= 0 {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	lim, ok := g.limiters[id]
	if !ok {
		return true
	}
	return lim.AllowN(now, 1)
}

// Fail отмечает неудачную попытку: следующая разрешена не раньше now + interval.
func (g *backoffGate) Fail(id uuid.UUID, now time.Time) {
	if g.interval <= 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	lim := rate.NewLimiter(rate.Every(g.interval), 1)
	lim.AllowN(now, 1) // забираем единственный токен
	g.limiters[id] = lim
}

// Reset снимает ограничение после успешного выполнения.
func (g *backoffGate) Reset(id uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.limiters, id)
}
