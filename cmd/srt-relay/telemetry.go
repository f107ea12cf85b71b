package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"srtrelay-backend/lib/telemetry"
	"srtrelay-backend/lib/util/serviceutil"

	"github.com/lmittmann/tint"
)

func initSlog(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)
}

func InitTelemetry(ctx context.Context, verbose bool) {
	initSlog(verbose)

	tel, err := telemetry.SetupFromEnv(ctx, "srt-relay")
	if os.IsNotExist(err) {
		slog.InfoContext(ctx, "no telemetry.json5 found, exporters disabled")
		return
	}
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	go func() {
		<-ctx.Done()
		tel.Shutdown(context.Background())
	}()

	if verbose {
		slog.DebugContext(ctx, "verbose logging enabled")
	}
}
