// Herald API — HTTP API для управления расписаниями.
//
// Помимо REST endpoints обслуживает webhook внешнего триггера и,
// если SCHEDULER_ENABLED=true, запускает фоновый поллер в том же процессе.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Herald/internal/api"
	"github.com/shaiso/Herald/internal/app"
	"github.com/shaiso/Herald/internal/config"
	"github.com/shaiso/Herald/internal/scheduler"
	"github.com/shaiso/Herald/internal/telemetry"
)

var startTime = time.Now()

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting herald-api")

	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Ожидаем сигнал завершения
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	if cfg.Scheduler.WebhookKey == "" {
		logger.Warn("SCHEDULER_WEBHOOK_KEY not set, webhook trigger rejects all requests")
	}

	handlerCfg := api.Config{
		Schedules:  rt.Schedules,
		Agents:     rt.Agents,
		Engine:     rt.Engine,
		WebhookKey: cfg.Scheduler.WebhookKey,
		Logger:     logger,
	}
	if rt.Stats != nil {
		handlerCfg.Stats = rt.Stats
	}
	handler := api.NewHandler(handlerCfg)

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := ":" + cfg.APIPort
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Фоновый поллер
	var wg sync.WaitGroup
	if cfg.Scheduler.Enabled {
		poller, err := scheduler.NewPoller(scheduler.PollerConfig{
			Runner: rt.Engine,
			Spec:   cfg.Scheduler.PollSpec,
			Logger: logger,
		})
		if err != nil {
			logger.Error("failed to create poller", "error", err)
			os.Exit(1)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
		}()
	} else {
		logger.Info("background poller disabled, relying on webhook and manual triggers")
	}

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	// Поллер доводит начатый проход до конца
	wg.Wait()

	logger.Info("stopped")
}
