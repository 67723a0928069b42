package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/repo"
)

// --- fakes ---

type fakeStore struct {
	mu        sync.Mutex
	schedules map[uuid.UUID]*domain.Schedule
	updates   int
	listErr   error
}

func newFakeStore(schedules ...domain.Schedule) *fakeStore {
	s := &fakeStore{schedules: make(map[uuid.UUID]*domain.Schedule)}
	for i := range schedules {
		sched := schedules[i]
		s.schedules[sched.ID] = &sched
	}
	return s
}

func (s *fakeStore) ListActive(_ context.Context) ([]domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.Schedule
	for _, sched := range s.schedules {
		if sched.IsActive {
			out = append(out, *sched)
		}
	}
	return out, nil
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *sched
	return &cp, nil
}

func (s *fakeStore) UpdateRunState(_ context.Context, id uuid.UUID, state domain.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	if !ok {
		return repo.ErrNotFound
	}
	sched.Advance(state)
	s.updates++
	return nil
}

func (s *fakeStore) RecordError(_ context.Context, id uuid.UUID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	if !ok {
		return repo.ErrNotFound
	}
	sched.LastError = message
	return nil
}

func (s *fakeStore) Reschedule(_ context.Context, id uuid.UUID, from, to time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	if !ok || sched.NextRunAt == nil || !sched.NextRunAt.Equal(from) {
		return false, nil
	}
	sched.NextRunAt = &to
	return true, nil
}

func (s *fakeStore) get(id uuid.UUID) domain.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.schedules[id]
}

func (s *fakeStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.Execution
}

func (p *fakePublisher) PublishExecution(_ context.Context, exec domain.Execution) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, exec)
	return nil
}

type engineFixture struct {
	engine    *Engine
	store     *fakeStore
	action    *fakeAction
	publisher *fakePublisher
	now       time.Time
	agent     *domain.Agent
}

func newEngineFixture(t *testing.T, agentActive bool, schedules ...domain.Schedule) *engineFixture {
	t.Helper()

	f := &engineFixture{
		store:     newFakeStore(schedules...),
		action:    &fakeAction{result: ActionResult{Items: 1}},
		publisher: &fakePublisher{},
		now:       testNow,
		agent:     agentFixture(agentActive),
	}

	agents := &fakeAgents{agents: map[uuid.UUID]*domain.Agent{f.agent.ID: f.agent}}
	f.engine = New(Config{
		Store:      f.store,
		Dispatcher: newTestDispatcher(agents, f.action, time.Second),
		Calculator: NewCalculator(DefaultUTCOffset),
		Window:     DefaultWindow(),
		Publisher:  f.publisher,
		Logger:     testLogger(),
		Clock:      func() time.Time { return f.now },
	})
	return f
}

func (f *engineFixture) daily(next time.Time) domain.Schedule {
	return domain.Schedule{
		ID:        uuid.New(),
		AgentID:   f.agent.ID,
		Frequency: domain.FrequencyDaily,
		TimeOfDay: "09:00",
		Action:    domain.ActionDigest,
		IsActive:  true,
		NextRunAt: ptr(next),
	}
}

func newFixtureWith(t *testing.T, agentActive bool, build func(f *engineFixture) []domain.Schedule) *engineFixture {
	t.Helper()
	f := newEngineFixture(t, agentActive)
	for _, sched := range build(f) {
		s := sched
		f.store.schedules[s.ID] = &s
	}
	return f
}

// --- RunDue ---

func TestEngine_RunDue_ExecutesAndAdvances(t *testing.T) {
	var id uuid.UUID
	f := newFixtureWith(t, true, func(f *engineFixture) []domain.Schedule {
		sched := f.daily(testNow) // 09:00 local
		id = sched.ID
		return []domain.Schedule{sched}
	})

	result, err := f.engine.RunDue(context.Background(), domain.SurfacePoller)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Due != 1 || result.Executed != 1 {
		t.Errorf("expected 1 due / 1 executed, got %+v", result)
	}

	got := f.store.get(id)
	if got.LastRunAt == nil || !got.LastRunAt.Equal(testNow) {
		t.Errorf("expected last_run_at %v, got %v", testNow, got.LastRunAt)
	}
	if want := testNow.Add(24 * time.Hour); !got.NextRunAt.Equal(want) {
		t.Errorf("expected next_run_at %v, got %v", want, got.NextRunAt)
	}
	if !got.IsActive {
		t.Error("recurring schedule should stay active")
	}

	if len(f.publisher.events) != 1 || f.publisher.events[0].Outcome != domain.OutcomeExecuted {
		t.Errorf("expected one EXECUTED event, got %+v", f.publisher.events)
	}
}

func TestEngine_RunDue_EarlyRunDoesNotRepeatOccurrence(t *testing.T) {
	var id uuid.UUID
	f := newFixtureWith(t, true, func(f *engineFixture) []domain.Schedule {
		sched := f.daily(testNow)
		id = sched.ID
		return []domain.Schedule{sched}
	})

	// поллер проснулся за 3 минуты до 09:00 local
	f.now = testNow.Add(-3 * time.Minute)
	if _, err := f.engine.RunDue(context.Background(), domain.SurfacePoller); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := f.store.get(id)
	if want := testNow.Add(24 * time.Hour); !got.NextRunAt.Equal(want) {
		t.Errorf("expected next_run_at %v, got %v", want, got.NextRunAt)
	}
}

func TestEngine_RunDue_SecondSurfaceSuppressed(t *testing.T) {
	f := newFixtureWith(t, true, func(f *engineFixture) []domain.Schedule {
		return []domain.Schedule{f.daily(testNow)}
	})

	if _, err := f.engine.RunDue(context.Background(), domain.SurfacePoller); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f.now = testNow.Add(2 * time.Minute)
	result, err := f.engine.RunDue(context.Background(), domain.SurfaceWebhook)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Executed != 0 {
		t.Errorf("webhook should not re-execute, got %+v", result)
	}
	if f.action.Calls() != 1 {
		t.Errorf("expected exactly 1 action call, got %d", f.action.Calls())
	}
}

func TestEngine_RunDue_PausedAgentAdvances(t *testing.T) {
	var id uuid.UUID
	f := newFixtureWith(t, false, func(f *engineFixture) []domain.Schedule {
		sched := f.daily(testNow)
		id = sched.ID
		return []domain.Schedule{sched}
	})

	result, err := f.engine.RunDue(context.Background(), domain.SurfacePoller)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Skipped != 1 {
		t.Errorf("expected 1 skipped, got %+v", result)
	}
	if f.action.Calls() != 0 {
		t.Error("action should not run for paused agent")
	}

	got := f.store.get(id)
	if want := testNow.Add(24 * time.Hour); !got.NextRunAt.Equal(want) {
		t.Errorf("paused schedule should advance to %v, got %v", want, got.NextRunAt)
	}
	if !got.IsActive {
		t.Error("schedule should stay active")
	}
}

func TestEngine_RunDue_OnceDeactivates(t *testing.T) {
	var id uuid.UUID
	f := newFixtureWith(t, true, func(f *engineFixture) []domain.Schedule {
		at := testNow
		sched := domain.Schedule{
			ID:        uuid.New(),
			AgentID:   f.agent.ID,
			Frequency: domain.FrequencyOnce,
			OneTimeAt: &at,
			Action:    domain.ActionDigest,
			IsActive:  true,
			NextRunAt: ptr(at),
		}
		id = sched.ID
		return []domain.Schedule{sched}
	})

	if _, err := f.engine.RunDue(context.Background(), domain.SurfacePoller); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := f.store.get(id)
	if got.IsActive {
		t.Error("once schedule should be deactivated after execution")
	}
	if got.LastRunAt == nil {
		t.Error("last_run_at should be set")
	}

	// больше никогда не выбирается
	f.now = testNow.Add(30 * time.Minute)
	result, _ := f.engine.RunDue(context.Background(), domain.SurfacePoller)
	if result.Due != 0 {
		t.Errorf("once schedule should not be due again, got %+v", result)
	}
}

func TestEngine_RunDue_FailureDoesNotAdvance(t *testing.T) {
	var id uuid.UUID
	f := newFixtureWith(t, true, func(f *engineFixture) []domain.Schedule {
		sched := f.daily(testNow)
		id = sched.ID
		return []domain.Schedule{sched}
	})
	f.action.err = fmt.Errorf("%w: no gmail refresh token", ErrPrerequisiteMissing)

	result, err := f.engine.RunDue(context.Background(), domain.SurfacePoller)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Failed != 1 {
		t.Errorf("expected 1 failed, got %+v", result)
	}

	got := f.store.get(id)
	if got.LastRunAt != nil {
		t.Error("last_run_at should not be set after failure")
	}
	if !got.NextRunAt.Equal(testNow) {
		t.Errorf("next_run_at should not move, got %v", got.NextRunAt)
	}
	if got.LastError == "" {
		t.Error("last_error should be recorded")
	}
	if f.store.updateCount() != 0 {
		t.Error("run state should not be written")
	}
}

func TestEngine_RunDue_FailureBackoff(t *testing.T) {
	f := newFixtureWith(t, true, func(f *engineFixture) []domain.Schedule {
		return []domain.Schedule{f.daily(testNow)}
	})
	f.action.err = fmt.Errorf("%w: 503", ErrCollaborator)

	if _, err := f.engine.RunDue(context.Background(), domain.SurfacePoller); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// webhook через 30 секунд: schedule всё ещё due, но в backoff
	f.now = testNow.Add(30 * time.Second)
	result, _ := f.engine.RunDue(context.Background(), domain.SurfaceWebhook)
	if result.Deferred != 1 || f.action.Calls() != 1 {
		t.Errorf("expected deferred retry, got %+v calls=%d", result, f.action.Calls())
	}

	// после backoff повтор разрешён и успешен
	f.action.err = nil
	f.now = testNow.Add(DefaultFailureBackoff + time.Second)
	result, _ = f.engine.RunDue(context.Background(), domain.SurfacePoller)
	if result.Executed != 1 {
		t.Errorf("expected retry to execute, got %+v", result)
	}
}

func TestEngine_RunDue_DeletedAgentAbandons(t *testing.T) {
	var id uuid.UUID
	f := newFixtureWith(t, true, func(f *engineFixture) []domain.Schedule {
		sched := f.daily(testNow)
		sched.AgentID = uuid.New() // агента нет
		id = sched.ID
		return []domain.Schedule{sched}
	})

	result, _ := f.engine.RunDue(context.Background(), domain.SurfacePoller)
	if result.Abandoned != 1 {
		t.Errorf("expected 1 abandoned, got %+v", result)
	}

	got := f.store.get(id)
	if got.LastRunAt == nil || !got.NextRunAt.After(testNow) {
		t.Error("abandoned execution should advance run state")
	}
}

func TestEngine_RunDue_ReschedulesMissed(t *testing.T) {
	// пропущено дольше горизонта catch-up
	missedAt := testNow.Add(-DefaultCatchUpHorizon - 2*time.Hour)

	var missedID, onceID uuid.UUID
	f := newFixtureWith(t, true, func(f *engineFixture) []domain.Schedule {
		missed := f.daily(missedAt)
		missedID = missed.ID

		at := missedAt
		once := domain.Schedule{
			ID:        uuid.New(),
			AgentID:   f.agent.ID,
			Frequency: domain.FrequencyOnce,
			OneTimeAt: &at,
			Action:    domain.ActionDigest,
			IsActive:  true,
			NextRunAt: ptr(at),
		}
		onceID = once.ID
		return []domain.Schedule{missed, once}
	})

	result, err := f.engine.RunDue(context.Background(), domain.SurfacePoller)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Executed != 0 || result.Rescheduled != 1 {
		t.Errorf("expected 1 rescheduled without execution, got %+v", result)
	}

	missed := f.store.get(missedID)
	if want := testNow.Add(24 * time.Hour); !missed.NextRunAt.Equal(want) {
		t.Errorf("expected next_run_at %v, got %v", want, missed.NextRunAt)
	}
	if missed.LastRunAt != nil {
		t.Error("rescheduling should not set last_run_at")
	}

	once := f.store.get(onceID)
	if !once.NextRunAt.Equal(missedAt) {
		t.Error("missed once schedule should stay for catch-up")
	}
}

func TestEngine_RunDue_RecentMissLeftForCatchUp(t *testing.T) {
	var id uuid.UUID
	f := newFixtureWith(t, true, func(f *engineFixture) []domain.Schedule {
		sched := f.daily(testNow)
		id = sched.ID
		return []domain.Schedule{sched}
	})

	// процесс лежал 3 часа, первый проход после старта
	f.now = testNow.Add(3 * time.Hour)
	result, err := f.engine.RunDue(context.Background(), domain.SurfacePoller)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Executed != 0 || result.Rescheduled != 0 {
		t.Errorf("recent miss should be left alone, got %+v", result)
	}
	if got := f.store.get(id); !got.NextRunAt.Equal(testNow) {
		t.Errorf("next_run_at should not move, got %v", got.NextRunAt)
	}

	caught, err := f.engine.CatchUp(context.Background(), domain.SurfaceManual)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caught.Due != 1 || caught.Executed != 1 {
		t.Errorf("catch-up should execute the missed run, got %+v", caught)
	}
	if got := f.store.get(id); !got.NextRunAt.Equal(testNow.Add(24 * time.Hour)) {
		t.Errorf("expected next_run_at %v, got %v", testNow.Add(24*time.Hour), got.NextRunAt)
	}
}

func TestEngine_RunDue_ThresholdKeepsNextOccurrence(t *testing.T) {
	var id uuid.UUID
	f := newFixtureWith(t, true, func(f *engineFixture) []domain.Schedule {
		sched := f.daily(testNow.Add(24 * time.Hour)) // завтра 09:00 local
		sched.ThresholdDays = 5
		sched.LastEventAt = ptr(testNow.Add(-6 * 24 * time.Hour))
		id = sched.ID
		return []domain.Schedule{sched}
	})

	// 10:00 local: порог превышен, естественный запуск завтра
	f.now = testNow.Add(time.Hour)
	result, err := f.engine.RunDue(context.Background(), domain.SurfacePoller)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Executed != 1 {
		t.Fatalf("expected threshold run, got %+v", result)
	}

	got := f.store.get(id)
	if want := testNow.Add(24 * time.Hour); !got.NextRunAt.Equal(want) {
		t.Errorf("tomorrow's run should be kept: expected %v, got %v", want, got.NextRunAt)
	}
}

func TestEngine_RunDue_PauseDuringExecutionKept(t *testing.T) {
	var id uuid.UUID
	f := newFixtureWith(t, true, func(f *engineFixture) []domain.Schedule {
		sched := f.daily(testNow)
		id = sched.ID
		return []domain.Schedule{sched}
	})

	// владелец ставит паузу, пока действие выполняется
	f.action.hook = func() {
		f.store.mu.Lock()
		f.store.schedules[id].IsActive = false
		f.store.mu.Unlock()
	}

	result, err := f.engine.RunDue(context.Background(), domain.SurfacePoller)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Executed != 1 {
		t.Fatalf("expected 1 executed, got %+v", result)
	}

	got := f.store.get(id)
	if got.IsActive {
		t.Error("pause set during execution should not be overwritten")
	}
	if got.LastRunAt == nil || !got.LastRunAt.Equal(testNow) {
		t.Errorf("run state should still be recorded, got last_run_at %v", got.LastRunAt)
	}
}

func TestEngine_RunDue_StoreError(t *testing.T) {
	f := newEngineFixture(t, true)
	f.store.listErr = errors.New("db down")

	if _, err := f.engine.RunDue(context.Background(), domain.SurfacePoller); err == nil {
		t.Error("expected error when store is unavailable")
	}
}

func TestEngine_RunDue_CancelledContextStartsNothing(t *testing.T) {
	f := newFixtureWith(t, true, func(f *engineFixture) []domain.Schedule {
		return []domain.Schedule{f.daily(testNow), f.daily(testNow)}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.engine.RunDue(ctx, domain.SurfacePoller)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Executed != 0 || f.action.Calls() != 0 {
		t.Errorf("no schedule should start after cancellation, got %+v", result)
	}
}

func TestEngine_RunDue_Concurrent(t *testing.T) {
	f := newFixtureWith(t, true, func(f *engineFixture) []domain.Schedule {
		var out []domain.Schedule
		for i := 0; i < 10; i++ {
			out = append(out, f.daily(testNow))
		}
		return out
	})
	f.action.delay = 10 * time.Millisecond

	result, err := f.engine.RunDue(context.Background(), domain.SurfacePoller)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Executed != 10 {
		t.Errorf("expected 10 executed, got %+v", result)
	}
	if f.store.updateCount() != 10 {
		t.Errorf("expected 10 run state updates, got %d", f.store.updateCount())
	}
}

// --- RunNow / CatchUp ---

func TestEngine_RunNow_BypassesDueness(t *testing.T) {
	var id uuid.UUID
	f := newFixtureWith(t, true, func(f *engineFixture) []domain.Schedule {
		sched := f.daily(testNow.Add(6 * time.Hour))
		sched.LastRunAt = ptr(testNow.Add(-time.Minute)) // в cooldown
		id = sched.ID
		return []domain.Schedule{sched}
	})

	outcome, err := f.engine.RunNow(context.Background(), id, domain.SurfaceManual)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Kind != domain.OutcomeExecuted {
		t.Errorf("expected EXECUTED, got %s", outcome.Kind)
	}

	got := f.store.get(id)
	if !got.LastRunAt.Equal(testNow) {
		t.Errorf("expected last_run_at %v, got %v", testNow, got.LastRunAt)
	}
}

func TestEngine_RunNow_AdvancesOnFailure(t *testing.T) {
	var id uuid.UUID
	f := newFixtureWith(t, true, func(f *engineFixture) []domain.Schedule {
		sched := f.daily(testNow)
		id = sched.ID
		return []domain.Schedule{sched}
	})
	f.action.err = fmt.Errorf("%w: 500", ErrCollaborator)

	outcome, err := f.engine.RunNow(context.Background(), id, domain.SurfaceManual)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Kind != domain.OutcomeFailed {
		t.Errorf("expected FAILED, got %s", outcome.Kind)
	}

	got := f.store.get(id)
	if got.LastRunAt == nil || !got.NextRunAt.After(testNow) {
		t.Error("manual run should always advance run state")
	}
}

func TestEngine_RunNow_KeepsNextOccurrence(t *testing.T) {
	var id uuid.UUID
	f := newFixtureWith(t, true, func(f *engineFixture) []domain.Schedule {
		sched := f.daily(testNow.Add(24 * time.Hour))
		id = sched.ID
		return []domain.Schedule{sched}
	})

	f.now = testNow.Add(time.Hour) // 10:00 local
	if _, err := f.engine.RunNow(context.Background(), id, domain.SurfaceManual); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := f.store.get(id)
	if want := testNow.Add(24 * time.Hour); !got.NextRunAt.Equal(want) {
		t.Errorf("expected next_run_at %v, got %v", want, got.NextRunAt)
	}
}

func TestEngine_RunNow_PanicAdvances(t *testing.T) {
	var id uuid.UUID
	f := newFixtureWith(t, true, func(f *engineFixture) []domain.Schedule {
		sched := f.daily(testNow)
		id = sched.ID
		return []domain.Schedule{sched}
	})
	f.action.hook = func() { panic("nil map") }

	outcome, err := f.engine.RunNow(context.Background(), id, domain.SurfaceManual)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Kind != domain.OutcomeFailed {
		t.Errorf("expected FAILED, got %s", outcome.Kind)
	}

	got := f.store.get(id)
	if got.LastRunAt == nil || !got.NextRunAt.After(testNow) {
		t.Error("manual run should advance even when the action panics")
	}
	if got.LastError == "" {
		t.Error("panic should be recorded in last_error")
	}
}

func TestEngine_RunNow_NotFound(t *testing.T) {
	f := newEngineFixture(t, true)

	_, err := f.engine.RunNow(context.Background(), uuid.New(), domain.SurfaceManual)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEngine_CatchUp(t *testing.T) {
	var missedID uuid.UUID
	f := newFixtureWith(t, true, func(f *engineFixture) []domain.Schedule {
		missed := f.daily(testNow.Add(-3 * time.Hour))
		missedID = missed.ID
		return []domain.Schedule{missed, f.daily(testNow.Add(3 * time.Hour))}
	})

	result, err := f.engine.CatchUp(context.Background(), domain.SurfaceCLI)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Due != 1 || result.Executed != 1 {
		t.Errorf("expected 1 overdue executed, got %+v", result)
	}

	got := f.store.get(missedID)
	if got.LastRunAt == nil || !got.NextRunAt.After(testNow) {
		t.Error("caught-up schedule should advance")
	}
}
