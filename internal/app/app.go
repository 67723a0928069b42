// Package app собирает движок расписаний и его зависимости из конфигурации.
//
// Используется бинарниками herald-api и herald-scheduler: у обоих одна и та же
// пара "отбор due + выполнение", отличаются только точки входа.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Herald/internal/actions"
	"github.com/shaiso/Herald/internal/analytics"
	"github.com/shaiso/Herald/internal/collab"
	"github.com/shaiso/Herald/internal/config"
	"github.com/shaiso/Herald/internal/mq"
	"github.com/shaiso/Herald/internal/repo"
	"github.com/shaiso/Herald/internal/scheduler"
)

// Runtime — собранный движок и открытые соединения.
type Runtime struct {
	Pool      *pgxpool.Pool
	Schedules *repo.ScheduleRepo
	Agents    *repo.AgentRepo
	Engine    *scheduler.Engine

	// Stats — nil, если Redis не настроен.
	Stats *analytics.RedisRecorder

	closers []func() error
	logger  *slog.Logger
}

// Build подключается к БД, создаёт схему и собирает движок.
//
// RabbitMQ и Redis необязательны: при недоступности движок работает
// без событий и без аналитики, о чём пишется предупреждение.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("database connected")

	rt := &Runtime{
		Pool:      pool,
		Schedules: repo.NewScheduleRepo(pool),
		Agents:    repo.NewAgentRepo(pool),
		logger:    logger,
	}
	rt.closers = append(rt.closers, func() error { pool.Close(); return nil })

	if err := repo.EnsureSchema(ctx, pool); err != nil {
		rt.Close()
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.Scheduler.ActionTimeout}
	registry := actions.NewRegistry(actions.Deps{
		Credentials: collab.AgentConfigResolver{DefaultBolnaAgentID: cfg.Bolna.AgentID},
		Summarizer:  collab.NewHTTPSummarizer(cfg.Digest.ServiceURL, httpClient),
		Deliverer: &collab.MailjetDeliverer{
			APIKey:      cfg.Mailjet.APIKey,
			APISecret:   cfg.Mailjet.APISecret,
			SenderEmail: cfg.Mailjet.SenderEmail,
			SenderName:  cfg.Mailjet.SenderName,
			Client:      httpClient,
		},
		Caller: &collab.BolnaCaller{
			BaseURL: cfg.Bolna.APIURL,
			APIKey:  cfg.Bolna.APIKey,
			Client:  httpClient,
		},
		FromNumber: cfg.Bolna.FromNumber,
	})

	engineCfg := scheduler.Config{
		Store: rt.Schedules,
		Dispatcher: scheduler.NewDispatcher(scheduler.DispatcherConfig{
			Agents:   rt.Agents,
			Registry: registry,
			Timeout:  cfg.Scheduler.ActionTimeout,
			Logger:   logger,
		}),
		Calculator:     scheduler.NewCalculator(cfg.UTCOffset()),
		Window:         cfg.Window(),
		Backoff:        cfg.Scheduler.FailureBackoff,
		Concurrency:    cfg.Scheduler.Concurrency,
		CatchUpHorizon: cfg.Scheduler.CatchUpHorizon,
		Logger:         logger,
	}

	if publisher := rt.connectBroker(ctx, cfg.RabbitMQURL); publisher != nil {
		engineCfg.Publisher = publisher
	}
	if recorder := rt.connectRedis(ctx, cfg.RedisAddr); recorder != nil {
		engineCfg.Recorder = recorder
		rt.Stats = recorder
	}

	rt.Engine = scheduler.New(engineCfg)
	return rt, nil
}

func (rt *Runtime) connectBroker(ctx context.Context, url string) *mq.Publisher {
	if url == "" {
		rt.logger.Info("RABBITMQ_URL not set, execution events disabled")
		return nil
	}

	conn, err := mq.NewConnection(url, rt.logger)
	if err != nil {
		rt.logger.Warn("RabbitMQ not available, execution events disabled", "error", err)
		return nil
	}
	rt.closers = append(rt.closers, conn.Close)

	if err := mq.SetupTopology(ctx, conn); err != nil {
		rt.logger.Warn("failed to setup topology", "error", err)
	} else {
		rt.logger.Debug("rabbitmq topology ready", "topology", mq.TopologyInfo())
	}

	return mq.NewPublisher(conn, rt.logger)
}

func (rt *Runtime) connectRedis(ctx context.Context, addr string) *analytics.RedisRecorder {
	if addr == "" {
		rt.logger.Info("REDIS_ADDR not set, execution analytics disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		rt.logger.Warn("Redis not available, execution analytics disabled", "error", err)
		client.Close()
		return nil
	}
	rt.closers = append(rt.closers, client.Close)

	rt.logger.Info("execution analytics enabled", "redis", addr)
	return analytics.NewRedisRecorder(client, analytics.DefaultRetention)
}

// Close закрывает соединения в обратном порядке.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
