package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/repo"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- fakes ---

type fakeAgents struct {
	agents map[uuid.UUID]*domain.Agent
	err    error
}

func (f *fakeAgents) GetByID(_ context.Context, id uuid.UUID) (*domain.Agent, error) {
	if f.err != nil {
		return nil, f.err
	}
	agent, ok := f.agents[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return agent, nil
}

type fakeAction struct {
	mu     sync.Mutex
	calls  int
	result ActionResult
	err    error
	delay  time.Duration

	// hook вызывается внутри Execute до возврата результата
	hook func()
}

func (f *fakeAction) Execute(ctx context.Context, _ *domain.Schedule, _ *domain.Agent) (ActionResult, error) {
	f.mu.Lock()
	f.calls++
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ActionResult{}, fmt.Errorf("%w: %v", ErrCollaborator, ctx.Err())
		}
	}
	return f.result, f.err
}

func (f *fakeAction) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestDispatcher(agents *fakeAgents, action Action, timeout time.Duration) *Dispatcher {
	registry := NewRegistry()
	registry.Register(domain.ActionDigest, action)
	return NewDispatcher(DispatcherConfig{
		Agents:   agents,
		Registry: registry,
		Timeout:  timeout,
		Logger:   testLogger(),
	})
}

func agentFixture(active bool) *domain.Agent {
	return &domain.Agent{ID: uuid.New(), OrgID: uuid.New(), Name: "assistant", IsActive: active}
}

// --- Dispatcher Tests ---

func TestDispatcher_Execute_Success(t *testing.T) {
	agent := agentFixture(true)
	action := &fakeAction{result: ActionResult{Items: 3}}
	d := newTestDispatcher(&fakeAgents{agents: map[uuid.UUID]*domain.Agent{agent.ID: agent}}, action, 0)

	outcome := d.Execute(context.Background(), &domain.Schedule{ID: uuid.New(), AgentID: agent.ID, Action: domain.ActionDigest})

	if outcome.Kind != domain.OutcomeExecuted || !outcome.DidWork {
		t.Errorf("expected EXECUTED with work, got %+v", outcome)
	}
	if action.Calls() != 1 {
		t.Errorf("expected 1 call, got %d", action.Calls())
	}
}

func TestDispatcher_Execute_NothingToDo(t *testing.T) {
	agent := agentFixture(true)
	action := &fakeAction{result: ActionResult{Items: 0, Detail: "no emails"}}
	d := newTestDispatcher(&fakeAgents{agents: map[uuid.UUID]*domain.Agent{agent.ID: agent}}, action, 0)

	outcome := d.Execute(context.Background(), &domain.Schedule{ID: uuid.New(), AgentID: agent.ID, Action: domain.ActionDigest})

	if !outcome.Success() || !outcome.DidWork {
		t.Errorf("empty result should be a success with work, got %+v", outcome)
	}
}

func TestDispatcher_Execute_PausedAgent(t *testing.T) {
	agent := agentFixture(false)
	action := &fakeAction{}
	d := newTestDispatcher(&fakeAgents{agents: map[uuid.UUID]*domain.Agent{agent.ID: agent}}, action, 0)

	outcome := d.Execute(context.Background(), &domain.Schedule{ID: uuid.New(), AgentID: agent.ID, Action: domain.ActionDigest})

	if outcome.Kind != domain.OutcomeSkipped || outcome.DidWork {
		t.Errorf("expected SKIPPED without work, got %+v", outcome)
	}
	if action.Calls() != 0 {
		t.Error("action should not be called for paused agent")
	}
}

func TestDispatcher_Execute_AgentDeleted(t *testing.T) {
	d := newTestDispatcher(&fakeAgents{}, &fakeAction{}, 0)

	outcome := d.Execute(context.Background(), &domain.Schedule{ID: uuid.New(), AgentID: uuid.New(), Action: domain.ActionDigest})

	if outcome.Kind != domain.OutcomeAbandoned {
		t.Errorf("expected ABANDONED, got %s", outcome.Kind)
	}
	if !errors.Is(outcome.Err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", outcome.Err)
	}
}

func TestDispatcher_Execute_AgentStoreError(t *testing.T) {
	d := newTestDispatcher(&fakeAgents{err: errors.New("connection refused")}, &fakeAction{}, 0)

	outcome := d.Execute(context.Background(), &domain.Schedule{ID: uuid.New(), AgentID: uuid.New(), Action: domain.ActionDigest})

	if outcome.Kind != domain.OutcomeFailed {
		t.Errorf("expected FAILED, got %s", outcome.Kind)
	}
}

func TestDispatcher_Execute_UnknownAction(t *testing.T) {
	agent := agentFixture(true)
	d := newTestDispatcher(&fakeAgents{agents: map[uuid.UUID]*domain.Agent{agent.ID: agent}}, &fakeAction{}, 0)

	outcome := d.Execute(context.Background(), &domain.Schedule{ID: uuid.New(), AgentID: agent.ID, Action: "fax"})

	if outcome.Kind != domain.OutcomeFailed {
		t.Errorf("expected FAILED, got %s", outcome.Kind)
	}
	if !errors.Is(outcome.Err, ErrConfiguration) || !errors.Is(outcome.Err, ErrUnknownAction) {
		t.Errorf("expected configuration error, got %v", outcome.Err)
	}
}

func TestDispatcher_Execute_ErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.OutcomeKind
	}{
		{"prerequisite", fmt.Errorf("%w: no refresh token", ErrPrerequisiteMissing), domain.OutcomeFailed},
		{"collaborator", fmt.Errorf("%w: 502", ErrCollaborator), domain.OutcomeFailed},
		{"configuration", fmt.Errorf("%w: bad params", ErrConfiguration), domain.OutcomeFailed},
		{"not found", fmt.Errorf("%w: contact", ErrNotFound), domain.OutcomeAbandoned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := agentFixture(true)
			d := newTestDispatcher(&fakeAgents{agents: map[uuid.UUID]*domain.Agent{agent.ID: agent}}, &fakeAction{err: tt.err}, 0)

			outcome := d.Execute(context.Background(), &domain.Schedule{ID: uuid.New(), AgentID: agent.ID, Action: domain.ActionDigest})

			if outcome.Kind != tt.want {
				t.Errorf("expected %s, got %s", tt.want, outcome.Kind)
			}
			if !errors.Is(outcome.Err, tt.err) {
				t.Errorf("expected wrapped error, got %v", outcome.Err)
			}
		})
	}
}

func TestDispatcher_Execute_Timeout(t *testing.T) {
	agent := agentFixture(true)
	action := &fakeAction{delay: time.Second}
	d := newTestDispatcher(&fakeAgents{agents: map[uuid.UUID]*domain.Agent{agent.ID: agent}}, action, 20*time.Millisecond)

	start := time.Now()
	outcome := d.Execute(context.Background(), &domain.Schedule{ID: uuid.New(), AgentID: agent.ID, Action: domain.ActionDigest})

	if time.Since(start) > 500*time.Millisecond {
		t.Error("action should be bounded by timeout")
	}
	if outcome.Kind != domain.OutcomeFailed {
		t.Errorf("expected FAILED, got %s", outcome.Kind)
	}
}
