package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/repo"
)

// DefaultActionTimeout — таймаут одного вызова действия.
const DefaultActionTimeout = 60 * time.Second

// Action — реализация конкретного типа действия (digest, call).
//
// Действие само получает учётные данные через resolver и вызывает
// внешние сервисы. Ошибки оборачивают ErrPrerequisiteMissing,
// ErrCollaborator или ErrConfiguration.
type Action interface {
	Execute(ctx context.Context, sched *domain.Schedule, agent *domain.Agent) (ActionResult, error)
}

// ActionResult — результат успешного выполнения действия.
type ActionResult struct {
	// Items — количество обработанных элементов (писем, звонков).
	// 0 означает "нечего было делать", что не является ошибкой.
	Items int

	// Detail — краткое описание для логов.
	Detail string
}

// AgentStore — чтение агентов.
type AgentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Agent, error)
}

// Outcome — итог попытки выполнения.
type Outcome struct {
	Kind    domain.OutcomeKind
	DidWork bool
	Err     error
}

// Success возвращает true для успешных итогов (включая мягкий пропуск).
func (o Outcome) Success() bool {
	return o.Kind == domain.OutcomeExecuted || o.Kind == domain.OutcomeSkipped
}

// Registry — реестр действий по типу.
type Registry struct {
	actions map[domain.ActionKind]Action
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[domain.ActionKind]Action)}
}

// Register добавляет действие для типа.
func (r *Registry) Register(kind domain.ActionKind, action Action) {
	r.actions[kind] = action
}

// Get возвращает действие для типа.
func (r *Registry) Get(kind domain.ActionKind) (Action, error) {
	action, ok := r.actions[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %w: %q", ErrConfiguration, ErrUnknownAction, kind)
	}
	return action, nil
}

// Dispatcher выполняет действие due schedule и классифицирует результат.
type Dispatcher struct {
	agents   AgentStore
	registry *Registry
	timeout  time.Duration
	logger   *slog.Logger
}

// DispatcherConfig — конфигурация Dispatcher.
type DispatcherConfig struct {
	Agents   AgentStore
	Registry *Registry
	Timeout  time.Duration // таймаут одного действия (default: 60s)
	Logger   *slog.Logger
}

// NewDispatcher создаёт новый Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultActionTimeout
	}
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	return &Dispatcher{
		agents:   cfg.Agents,
		registry: registry,
		timeout:  timeout,
		logger:   cfg.Logger,
	}
}

// Execute выполняет schedule.
//
//  1. Находит агента (удалён → ABANDONED)
//  2. Агент на паузе → SKIPPED (run-state всё равно продвигается)
//  3. Выбирает действие по типу (неизвестный тип → FAILED, ErrConfiguration)
//  4. Вызывает действие с таймаутом
//
// Пустой результат действия ("нет писем") считается успехом.
func (d *Dispatcher) Execute(ctx context.Context, sched *domain.Schedule) Outcome {
	logger := d.logger.With("schedule_id", sched.ID, "agent_id", sched.AgentID)

	agent, err := d.agents.GetByID(ctx, sched.AgentID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) || errors.Is(err, ErrNotFound) {
			logger.Warn("agent not found for schedule, abandoning execution")
			return Outcome{
				Kind: domain.OutcomeAbandoned,
				Err:  fmt.Errorf("%w: agent %s", ErrNotFound, sched.AgentID),
			}
		}
		return Outcome{Kind: domain.OutcomeFailed, Err: fmt.Errorf("get agent: %w", err)}
	}

	if !agent.IsActive {
		logger.Info("agent is paused, skipping execution")
		return Outcome{Kind: domain.OutcomeSkipped, DidWork: false}
	}

	action, err := d.registry.Get(sched.Action)
	if err != nil {
		return Outcome{Kind: domain.OutcomeFailed, Err: err}
	}

	actionCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	result, err := action.Execute(actionCtx, sched, agent)
	if err != nil {
		if IsTerminal(err) {
			return Outcome{Kind: domain.OutcomeAbandoned, Err: err}
		}
		return Outcome{Kind: domain.OutcomeFailed, Err: err}
	}

	if result.Items == 0 {
		logger.Info("nothing to do for schedule", "action", sched.Action, "detail", result.Detail)
	} else {
		logger.Info("schedule action completed",
			"action", sched.Action,
			"items", result.Items,
			"detail", result.Detail,
		)
	}

	return Outcome{Kind: domain.OutcomeExecuted, DidWork: true}
}
