package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"nwsl-backend/cmd/nwsl-cli/commands"
	"nwsl-backend/lib/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry.InitSlog(os.Getenv("NWSL_VERBOSE") != "")
	otel, err := telemetry.SetupFromEnv(ctx, "nwsl-cli")
	if err != nil {
		slog.Warn("failed to setup telemetry", "err", err)
	}
	code := commands.ExecuteContext(ctx)
	err = otel.Shutdown(context.Background())
	if err != nil {
		slog.Warn("failed to shutdown telemetry", "err", err)
	}
	os.Exit(code)
}
