package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nwsl-backend/internal/components/chrono"
	"nwsl-backend/internal/components/telemetry"
	"nwsl-backend/internal/config"
	"nwsl-backend/internal/migrate"
	"nwsl-backend/internal/notify"
	"nwsl-backend/internal/validate"
	libtelemetry "nwsl-backend/lib/telemetry"
)

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}

func main() {
	configPath := flag.String("config", config.DefaultPath, "The configuration file to read.")
	runNow := flag.Bool("now", false, "Runs the checks once at startup.")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	libtelemetry.InitSlog(os.Getenv("NWSL_VERBOSE") != "")
	otel, err := libtelemetry.SetupFromEnv(ctx, "nwsl-validated")
	if err != nil {
		slog.Warn("failed to setup telemetry", "err", err)
	}
	defer otel.Shutdown(context.Background())

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("failed to load configuration", err)
	}

	tel := telemetry.SlogAPI{}
	database, err := migrate.OpenAndMigrate(ctx, tel, cfg.DB)
	if err != nil {
		fatal("failed to open database", err)
	}
	defer database.Close()
	libtelemetry.InstrumentPerfStats(ctx, database)

	service := NewService(
		tel,
		validate.NewValidator(tel, database, chrono.NewStandardTime(nil), cfg.ValidateOptions()),
		notify.NewNotifier(tel, cfg.Smtp, nil, cfg.NotifyOptions()),
		cfg.Validate.ReportDir,
	)

	location, err := cfg.Location()
	if err != nil {
		fatal("invalid timezone", err)
	}
	cron := chrono.NewStandardCron(tel, location)
	defer cron.Stop()
	err = cron.Cron(cfg.Validate.Schedule, func() {
		run, err := service.RunOnce(ctx)
		if err != nil {
			slog.Warn("scheduled run finished with errors", "err", err)
		}
		slog.Info("scheduled run done", "id", run.ID, "health_score", run.Summary.HealthScore)
	})
	if err != nil {
		fatal("invalid schedule", err)
	}
	if *runNow {
		go service.RunOnce(ctx)
	}

	server := &http.Server{
		Addr:        cfg.Validate.Listen,
		Handler:     service.Router(),
		ReadTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("listening", "addr", cfg.Validate.Listen, "schedule", cfg.Validate.Schedule)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server stopped", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	if err != nil {
		slog.Warn("failed to shutdown server", "err", err)
	}
}
