package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Herald/internal/analytics"
	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/repo"
	"github.com/shaiso/Herald/internal/scheduler"
)

// ScheduleStore — операции с schedules, которые нужны API.
type ScheduleStore interface {
	Create(ctx context.Context, schedule *domain.Schedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error)
	List(ctx context.Context, filter repo.ScheduleFilter) ([]domain.Schedule, error)
	Update(ctx context.Context, schedule *domain.Schedule) error
	Delete(ctx context.Context, id uuid.UUID) error
	SetActive(ctx context.Context, id uuid.UUID, active bool, nextRunAt *time.Time) error
	MarkEvent(ctx context.Context, id uuid.UUID, at time.Time) error
}

// AgentStore — чтение агентов.
type AgentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Agent, error)
}

// Engine — движок выполнения расписаний.
type Engine interface {
	RunDue(ctx context.Context, surface domain.Surface) (scheduler.PassResult, error)
	RunNow(ctx context.Context, id uuid.UUID, surface domain.Surface) (scheduler.Outcome, error)
	CatchUp(ctx context.Context, surface domain.Surface) (scheduler.PassResult, error)
	Calculator() *scheduler.Calculator
}

// StatsProvider — статистика выполнений (Redis).
type StatsProvider interface {
	Stats(ctx context.Context, orgID, scheduleID uuid.UUID, hours int, now time.Time) (*analytics.Stats, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	schedules  ScheduleStore
	agents     AgentStore
	engine     Engine
	stats      StatsProvider
	webhookKey string
	logger     *slog.Logger
	clock      func() time.Time
}

// Config — конфигурация для создания Handler.
type Config struct {
	Schedules ScheduleStore
	Agents    AgentStore
	Engine    Engine

	// Stats — опционально; без него /stats отвечает 503.
	Stats StatsProvider

	// WebhookKey — общий секрет webhook. Пустой ключ отклоняет все вызовы.
	WebhookKey string

	Logger *slog.Logger
	Clock  func() time.Time
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Handler{
		schedules:  cfg.Schedules,
		agents:     cfg.Agents,
		engine:     cfg.Engine,
		stats:      cfg.Stats,
		webhookKey: cfg.WebhookKey,
		logger:     cfg.Logger,
		clock:      clock,
	}
}

func (h *Handler) now() time.Time {
	return h.clock().UTC()
}
