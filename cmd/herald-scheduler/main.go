// Herald Scheduler — отдельный процесс фонового поллера.
//
// Использование:
//
//	herald-scheduler          # поллер + /healthz и /metrics на SCHED_PORT
//	herald-scheduler --once   # один проход и выход (для внешнего cron)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/Herald/internal/app"
	"github.com/shaiso/Herald/internal/config"
	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/scheduler"
	"github.com/shaiso/Herald/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var once bool

	rootCmd := &cobra.Command{
		Use:           "herald-scheduler",
		Short:         "Herald background schedule poller",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := telemetry.SetupLogger()

			cfg, err := config.Load()
			if err == nil {
				err = cfg.Validate()
			}
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			rt, err := app.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			if once {
				return runOnce(ctx, rt.Engine, logger)
			}
			return serve(ctx, cancel, cfg, rt.Engine, logger)
		},
	}

	rootCmd.Flags().BoolVar(&once, "once", false, "Run a single due-schedule pass and exit")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// runOnce выполняет один проход через тот же движок, что и поллер.
func runOnce(ctx context.Context, engine *scheduler.Engine, logger *slog.Logger) error {
	result, err := engine.RunDue(ctx, domain.SurfaceCLI)
	if err != nil {
		return err
	}

	logger.Info("single pass completed",
		"due", result.Due,
		"executed", result.Executed,
		"failed", result.Failed,
		"rescheduled", result.Rescheduled,
	)
	return nil
}

func serve(ctx context.Context, cancel context.CancelFunc, cfg config.Config, engine *scheduler.Engine, logger *slog.Logger) error {
	poller, err := scheduler.NewPoller(scheduler.PollerConfig{
		Runner: engine,
		Spec:   cfg.Scheduler.PollSpec,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s passes=%d", poller.State(), poller.Passes())
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.SchedPort
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Run возвращается после отмены ctx и завершения текущего прохода
	poller.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("herald-scheduler stopped")
	return nil
}
