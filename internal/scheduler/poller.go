package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/telemetry"
)

// DefaultPollSpec — расписание пробуждений поллера по умолчанию.
const DefaultPollSpec = "@every 60s"

// PollerState — состояние фонового поллера.
type PollerState string

// Состояния поллера: Idle → Checking → Sleeping → Idle.
const (
	PollerIdle     PollerState = "idle"
	PollerChecking PollerState = "checking"
	PollerSleeping PollerState = "sleeping"
)

var pollerStates = []string{string(PollerIdle), string(PollerChecking), string(PollerSleeping)}

// Runner — один проход отбора и выполнения due schedules.
type Runner interface {
	RunDue(ctx context.Context, surface domain.Surface) (PassResult, error)
}

// Poller — фоновый цикл, вызывающий RunDue по расписанию.
//
// Ошибка или паника во время прохода логируется, после чего поллер
// засыпает до следующего пробуждения: цикл завершается только по ctx.
type Poller struct {
	runner   Runner
	schedule cron.Schedule
	logger   *slog.Logger
	state    atomic.Value // PollerState
	passes   atomic.Int64
}

// PollerConfig — конфигурация Poller.
type PollerConfig struct {
	Runner Runner
	Spec   string // cron-выражение или дескриптор "@every 60s" (default: DefaultPollSpec)
	Logger *slog.Logger
}

// NewPoller создаёт Poller. Возвращает ошибку для некорректного Spec.
func NewPoller(cfg PollerConfig) (*Poller, error) {
	spec := cfg.Spec
	if spec == "" {
		spec = DefaultPollSpec
	}

	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse poll spec %q: %w", spec, err)
	}

	p := &Poller{
		runner:   cfg.Runner,
		schedule: schedule,
		logger:   cfg.Logger,
	}
	p.setState(PollerIdle)
	return p, nil
}

// State возвращает текущее состояние поллера.
func (p *Poller) State() PollerState {
	return p.state.Load().(PollerState)
}

// Passes возвращает количество выполненных проходов.
func (p *Poller) Passes() int64 {
	return p.passes.Load()
}

// Run запускает цикл и блокируется до отмены ctx.
//
// Первый проход выполняется сразу. Ожидание прерывается отменой ctx,
// текущий проход при этом доводит начатые schedules до конца.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("poller started")
	defer func() {
		p.setState(PollerIdle)
		p.logger.Info("poller stopped")
	}()

	for {
		p.check(ctx)

		next := p.schedule.Next(time.Now())
		p.setState(PollerSleeping)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		p.setState(PollerIdle)
	}
}

// check выполняет один проход, не давая ошибке или панике завершить цикл.
func (p *Poller) check(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	p.setState(PollerChecking)
	defer p.passes.Add(1)

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in scheduler pass", "panic", r)
		}
	}()

	if _, err := p.runner.RunDue(ctx, domain.SurfacePoller); err != nil {
		p.logger.Error("scheduler pass failed", "error", err)
	}
}

func (p *Poller) setState(s PollerState) {
	p.state.Store(s)
	telemetry.SetPollerState(string(s), pollerStates)
}
