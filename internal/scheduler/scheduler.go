package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/repo"
	"github.com/shaiso/Herald/internal/telemetry"
)

// DefaultConcurrency — сколько schedules выполняется параллельно за один проход.
const DefaultConcurrency = 4

// DefaultCatchUpHorizon — сколько пропущенный запуск ждёт ручного catch-up,
// прежде чем проход сдвинет его на следующее вхождение.
const DefaultCatchUpHorizon = 24 * time.Hour

// Store — хранилище schedules, с которым работает Engine.
//
// Гарантий сверх атомарного обновления одной строки не предполагается:
// дедупликация держится на cooldown, а не на блокировках.
type Store interface {
	ListActive(ctx context.Context) ([]domain.Schedule, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error)
	UpdateRunState(ctx context.Context, id uuid.UUID, state domain.RunState) error
	RecordError(ctx context.Context, id uuid.UUID, message string) error
	Reschedule(ctx context.Context, id uuid.UUID, from, to time.Time) (bool, error)
}

// EventPublisher публикует события о выполнении (RabbitMQ).
type EventPublisher interface {
	PublishExecution(ctx context.Context, exec domain.Execution) error
}

// OutcomeRecorder учитывает итоги выполнения (Redis).
type OutcomeRecorder interface {
	Record(ctx context.Context, exec domain.Execution) error
}

// Engine — единая пара "отбор due + выполнение", которую вызывают все
// точки входа: поллер, webhook, ручной запуск и CLI.
type Engine struct {
	store       Store
	dispatcher  *Dispatcher
	calc        *Calculator
	window      Window
	gate        *backoffGate
	concurrency int
	horizon     time.Duration
	publisher   EventPublisher
	recorder    OutcomeRecorder
	logger      *slog.Logger
	clock       func() time.Time
}

// Config — конфигурация Engine.
type Config struct {
	Store       Store
	Dispatcher  *Dispatcher
	Calculator  *Calculator
	Window      Window
	Backoff     time.Duration // минимальная пауза после ошибки (default: 2m, <0 — выключено)
	Concurrency int           // параллельность прохода (default: 4)

	// CatchUpHorizon — пропущенные запуски старше горизонта сдвигаются
	// вперёд без выполнения (default: 24h, <0 — никогда).
	CatchUpHorizon time.Duration
	Publisher      EventPublisher
	Recorder       OutcomeRecorder
	Logger         *slog.Logger
	Clock          func() time.Time
}

// New создаёт новый Engine.
func New(cfg Config) *Engine {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	window := cfg.Window
	if window.Tolerance <= 0 {
		window.Tolerance = DefaultTolerance
	}
	if window.Cooldown <= 0 {
		window.Cooldown = DefaultCooldown
	}

	backoff := cfg.Backoff
	if backoff == 0 {
		backoff = DefaultFailureBackoff
	}

	horizon := cfg.CatchUpHorizon
	if horizon == 0 {
		horizon = DefaultCatchUpHorizon
	}

	calc := cfg.Calculator
	if calc == nil {
		calc = NewCalculator(DefaultUTCOffset)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Engine{
		store:       cfg.Store,
		dispatcher:  cfg.Dispatcher,
		calc:        calc,
		window:      window,
		gate:        newBackoffGate(backoff),
		concurrency: concurrency,
		horizon:     horizon,
		publisher:   cfg.Publisher,
		recorder:    cfg.Recorder,
		logger:      cfg.Logger,
		clock:       clock,
	}
}

// Calculator возвращает калькулятор повторений движка.
func (e *Engine) Calculator() *Calculator {
	return e.calc
}

// Window возвращает параметры окна отбора.
func (e *Engine) Window() Window {
	return e.window
}

// PassResult — итог одного прохода.
type PassResult struct {
	Due         int // schedules в due set
	Executed    int // действие выполнено
	Skipped     int // агент на паузе
	Failed      int // ошибка, run-state не продвинут
	Abandoned   int // терминальная ошибка
	Deferred    int // пропущены из-за backoff после ошибки
	Rescheduled int // пропущенное окно, next_run_at сдвинут вперёд
}

func (r *PassResult) add(kind domain.OutcomeKind) {
	switch kind {
	case domain.OutcomeExecuted:
		r.Executed++
	case domain.OutcomeSkipped:
		r.Skipped++
	case domain.OutcomeFailed:
		r.Failed++
	case domain.OutcomeAbandoned:
		r.Abandoned++
	}
}

// RunDue выполняет один проход: отбирает due schedules и выполняет их.
//
// 1. Читает активные schedules
// 2. Отбирает due (окно допуска + cooldown)
// 3. Выполняет параллельно (не более concurrency одновременно)
// 4. Сдвигает next_run_at у повторяющихся schedules, пропущенных дольше горизонта catch-up
//
// Ошибки отдельных schedules не прерывают проход. Ошибка возвращается
// только если не удалось прочитать хранилище.
func (e *Engine) RunDue(ctx context.Context, surface domain.Surface) (PassResult, error) {
	start := e.clock()
	now := start.UTC()

	schedules, err := e.store.ListActive(ctx)
	if err != nil {
		telemetry.ObservePass(surface, time.Since(start), err)
		return PassResult{}, fmt.Errorf("list active schedules: %w", err)
	}

	due := DueSchedules(schedules, now, e.window)

	var runnable []domain.Schedule
	result := PassResult{Due: len(due)}
	for i := range due {
		if !e.gate.Allow(due[i].ID, now) {
			e.logger.Debug("schedule in failure backoff, deferring", "schedule_id", due[i].ID)
			result.Deferred++
			continue
		}
		runnable = append(runnable, due[i])
	}

	if len(due) > 0 {
		e.logger.Debug("found due schedules", "surface", surface, "count", len(due))
	}

	passResult := e.runPass(ctx, runnable, now, surface, false)
	result.Executed = passResult.Executed
	result.Skipped = passResult.Skipped
	result.Failed = passResult.Failed
	result.Abandoned = passResult.Abandoned

	result.Rescheduled = e.rescheduleMissed(ctx, schedules, now)

	if result.Due > 0 || result.Rescheduled > 0 {
		e.logger.Info("scheduler pass completed",
			"surface", surface,
			"due", result.Due,
			"executed", result.Executed,
			"skipped", result.Skipped,
			"failed", result.Failed,
			"abandoned", result.Abandoned,
			"deferred", result.Deferred,
			"rescheduled", result.Rescheduled,
		)
	}

	telemetry.ObservePass(surface, time.Since(start), nil)
	return result, nil
}

// RunNow выполняет schedule немедленно, минуя проверку due.
//
// Run-state продвигается при любом завершении попытки, в том числе при
// ошибке: ручной запуск не повторяется автоматически.
func (e *Engine) RunNow(ctx context.Context, id uuid.UUID, surface domain.Surface) (Outcome, error) {
	sched, err := e.store.GetByID(ctx, id)
	if err != nil {
		return Outcome{}, err
	}

	now := e.clock().UTC()
	outcome := e.execute(ctx, sched, now, surface, true)
	return outcome, nil
}

// CatchUp выполняет все schedules с пропущенным окном запуска
// через ручной путь (без проверки due, с продвижением run-state).
func (e *Engine) CatchUp(ctx context.Context, surface domain.Surface) (PassResult, error) {
	now := e.clock().UTC()

	schedules, err := e.store.ListActive(ctx)
	if err != nil {
		return PassResult{}, fmt.Errorf("list active schedules: %w", err)
	}

	overdue := OverdueSchedules(schedules, now, e.window)
	result := e.runPass(ctx, overdue, now, surface, true)
	result.Due = len(overdue)

	e.logger.Info("catch-up completed",
		"surface", surface,
		"overdue", result.Due,
		"executed", result.Executed,
		"failed", result.Failed,
	)
	return result, nil
}

// runPass выполняет schedules с ограниченной параллельностью.
//
// Начатые schedules доводятся до конца даже при отмене ctx
// (контекст выполнения отвязан от отмены, время ограничено таймаутом
// действия), новые после отмены не начинаются.
func (e *Engine) runPass(ctx context.Context, schedules []domain.Schedule, now time.Time, surface domain.Surface, force bool) PassResult {
	var (
		mu     sync.Mutex
		result PassResult
	)

	execCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for i := range schedules {
		sched := &schedules[i]

		if ctx.Err() != nil {
			e.logger.Info("pass interrupted, not starting remaining schedules",
				"surface", surface,
				"remaining", len(schedules)-i,
			)
			break
		}

		g.Go(func() error {
			outcome := e.execute(execCtx, sched, now, surface, force)

			mu.Lock()
			result.add(outcome.Kind)
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait() // горутины не возвращают ошибок
	return result
}

// execute выполняет один schedule и применяет итог к хранилищу.
func (e *Engine) execute(ctx context.Context, sched *domain.Schedule, now time.Time, surface domain.Surface, force bool) Outcome {
	logger := telemetry.WithScheduleID(e.logger, sched.ID.String())

	outcome := e.dispatch(ctx, sched, logger)

	if outcome.Err != nil {
		logger.Error("schedule execution failed",
			"surface", surface,
			"outcome", outcome.Kind,
			"error", outcome.Err,
		)
	}

	exec := domain.Execution{
		ScheduleID: sched.ID,
		OrgID:      sched.OrgID,
		AgentID:    sched.AgentID,
		Action:     sched.Action,
		Surface:    surface,
		Outcome:    outcome.Kind,
		DidWork:    outcome.DidWork,
		IsActive:   sched.IsActive,
		At:         now,
	}
	if outcome.Err != nil {
		exec.Error = outcome.Err.Error()
	}

	if outcome.Kind.Advances() || force {
		state, err := e.advance(ctx, sched, now)
		if err != nil {
			logger.Error("failed to advance schedule", "error", err)
			if errors.Is(err, ErrConfiguration) {
				e.recordFailure(ctx, sched, Outcome{Kind: domain.OutcomeFailed, Err: err}, now)
			}
		} else {
			exec.NextRunAt = state.NextRunAt
			exec.IsActive = state.IsActive
			if outcome.Success() {
				e.gate.Reset(sched.ID)
			}
		}
		if !outcome.Kind.Advances() && outcome.Err != nil {
			// ручной запуск продвинут, но ошибка остаётся видна владельцу
			if err := e.store.RecordError(ctx, sched.ID, outcome.Err.Error()); err != nil && !errors.Is(err, repo.ErrNotFound) {
				logger.Warn("failed to record schedule error", "error", err)
			}
		}
	} else {
		e.recordFailure(ctx, sched, outcome, now)
	}

	telemetry.ObserveExecution(surface, outcome.Kind)
	e.emit(ctx, exec)

	return outcome
}

// dispatch вызывает действие. Паника действия превращается в FAILED,
// дальше итог обрабатывается как обычно (ручной запуск продвигается).
func (e *Engine) dispatch(ctx context.Context, sched *domain.Schedule, logger *slog.Logger) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while executing schedule", "panic", r)
			outcome = Outcome{Kind: domain.OutcomeFailed, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	return e.dispatcher.Execute(ctx, sched)
}

// advance вычисляет следующий запуск и записывает run-state одной операцией.
//
// Следующий запуск считается от now. Исключение — запуск чуть раньше
// срока: если next_run_at ещё впереди, но в пределах допуска, отсчёт идёт
// от него, иначе обслуженное вхождение выбралось бы повторно.
// Дальний next_run_at (ручной запуск, срабатывание по порогу) не учитывается:
// ближайшее естественное вхождение не теряется.
func (e *Engine) advance(ctx context.Context, sched *domain.Schedule, now time.Time) (domain.RunState, error) {
	ref := now
	if sched.NextRunAt != nil && sched.NextRunAt.After(now) && e.window.inTolerance(*sched.NextRunAt, now) {
		ref = *sched.NextRunAt
	}

	ran := *sched
	ran.LastRunAt = &now

	next, err := e.calc.NextOccurrence(&ran, ref)
	if err != nil {
		return domain.RunState{}, fmt.Errorf("calculate next occurrence: %w", err)
	}

	state := domain.RunState{
		LastRunAt: now,
		NextRunAt: next,
		IsActive:  sched.IsActive && next != nil,
	}

	if err := e.store.UpdateRunState(ctx, sched.ID, state); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// schedule удалён во время выполнения — обновлять нечего
			return state, nil
		}
		return domain.RunState{}, fmt.Errorf("update run state: %w", err)
	}

	sched.Advance(state)
	return state, nil
}

// recordFailure сохраняет ошибку для владельца и включает backoff.
func (e *Engine) recordFailure(ctx context.Context, sched *domain.Schedule, outcome Outcome, now time.Time) {
	e.gate.Fail(sched.ID, now)

	if outcome.Err == nil {
		return
	}
	if err := e.store.RecordError(ctx, sched.ID, outcome.Err.Error()); err != nil && !errors.Is(err, repo.ErrNotFound) {
		e.logger.Warn("failed to record schedule error", "schedule_id", sched.ID, "error", err)
	}
}

// rescheduleMissed сдвигает next_run_at повторяющихся schedules, пропущенных
// дольше горизонта catch-up: такой запуск уже не догоняется и ждёт следующего
// естественного вхождения. Более свежие пропуски остаются для CatchUp.
// Разовые schedules не трогаются никогда.
func (e *Engine) rescheduleMissed(ctx context.Context, schedules []domain.Schedule, now time.Time) int {
	if e.horizon < 0 {
		return 0
	}

	var moved int
	for _, sched := range OverdueSchedules(schedules, now, e.window) {
		if sched.Frequency == domain.FrequencyOnce || IsThresholdOverdue(&sched, now) {
			continue
		}
		if now.Sub(*sched.NextRunAt) <= e.horizon {
			continue
		}

		next, err := e.calc.NextOccurrence(&sched, now)
		if err != nil || next == nil {
			continue
		}

		ok, err := e.store.Reschedule(ctx, sched.ID, *sched.NextRunAt, *next)
		if err != nil {
			e.logger.Warn("failed to reschedule missed schedule", "schedule_id", sched.ID, "error", err)
			continue
		}
		if ok {
			e.logger.Info("missed schedule window, moved to next occurrence",
				"schedule_id", sched.ID,
				"missed_at", sched.NextRunAt,
				"next_run_at", next,
			)
			moved++
		}
	}
	return moved
}

// emit публикует событие и учитывает итог. Ошибки не фатальны.
func (e *Engine) emit(ctx context.Context, exec domain.Execution) {
	if e.publisher != nil {
		if err := e.publisher.PublishExecution(ctx, exec); err != nil {
			e.logger.Warn("failed to publish execution event",
				"schedule_id", exec.ScheduleID,
				"error", err,
			)
		}
	}

	if e.recorder != nil {
		if err := e.recorder.Record(ctx, exec); err != nil {
			e.logger.Warn("failed to record execution outcome",
				"schedule_id", exec.ScheduleID,
				"error", err,
			)
		}
	}
}
