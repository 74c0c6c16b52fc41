package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/querydesk/querydesk/internal/demo/seeder"
)

func main() {
	cfg, err := seeder.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		slog.Error("failed to load seeder config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	service, err := seeder.NewService(cfg, logger, nil)
	if err != nil {
		logger.Error("failed to initialize seeder", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(
		"seeder started",
		slog.String("api_url", cfg.APIBaseURL),
		slog.String("table", cfg.TableName),
		slog.String("format", cfg.Format),
		slog.Int("rows", cfg.Rows),
		slog.Bool("replace", cfg.Replace),
		slog.Bool("save_after_load", cfg.SaveAfterLoad),
	)

	err = service.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("seeder stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("seeder finished")
}
