package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/swamp/internal/pipeline"
	"github.com/JonMunkholm/swamp/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run the pipeline on schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		var scheduler *pipeline.Scheduler
		if cfg.Schedule.Enabled {
			scheduler, err = pipeline.NewScheduler(a.runner, pipeline.ScheduleConfig{
				Spec:      cfg.Schedule.Spec,
				DataTypes: cfg.Schedule.DataTypes,
			})
			if err != nil {
				return err
			}
			scheduler.Start()
		}

		server := web.NewServer(cfg, web.Deps{
			Runner:  a.runner,
			Engine:  a.engine,
			Metrics: a.metrics,
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if scheduler != nil {
			if err := scheduler.Stop(shutdownCtx); err != nil {
				slog.Warn("scheduled runs did not stop in time", "error", err)
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		status := a.runner.Limiter().Status()
		if status.Active > 0 {
			slog.Info("waiting for runs to complete", "active", status.Active)
			if err := a.runner.Limiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("runs did not complete in time", "error", err)
				return nil
			}
			slog.Info("all runs completed")
		}
		a.runner.Wait()
		return nil
	},
}
