package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/querydesk/querydesk/internal/api"
	"github.com/querydesk/querydesk/internal/archive"
	"github.com/querydesk/querydesk/internal/auth"
	"github.com/querydesk/querydesk/internal/classify"
	"github.com/querydesk/querydesk/internal/config"
	"github.com/querydesk/querydesk/internal/engine/duckdb"
	"github.com/querydesk/querydesk/internal/kv"
	"github.com/querydesk/querydesk/internal/kv/pgkv"
	"github.com/querydesk/querydesk/internal/kv/s3kv"
	"github.com/querydesk/querydesk/internal/kv/sqlitekv"
	"github.com/querydesk/querydesk/internal/nl2sql"
	"github.com/querydesk/querydesk/internal/observability"
	"github.com/querydesk/querydesk/internal/persist"
	"github.com/querydesk/querydesk/internal/result"
	"github.com/querydesk/querydesk/internal/session"
)

func main() {
	cfg, err := config.LoadFromEnv("querydesk-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	engine, err := duckdb.Open(context.Background(), duckdb.Config{
		Path:        cfg.Engine.Path,
		MemoryLimit: cfg.Engine.MemoryLimit,
		Threads:     cfg.Engine.Threads,
	})
	if err != nil {
		logger.Error("failed to open query engine", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = engine.Close() }()

	kvStore, closeKV, err := openKV(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to open key value store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeKV()

	store := &persist.Store{
		Engine: engine,
		KV:     kvStore,
		Config: persist.Config{
			WarnRows:       cfg.Persistence.WarnRows,
			StrongWarnRows: cfg.Persistence.StrongWarnRows,
		},
		Logger: logger,
	}

	// Saved tables come back before the server accepts traffic.
	restoreCtx, cancelRestore := context.WithTimeout(context.Background(), 2*time.Minute)
	summary, err := store.RestoreAll(restoreCtx)
	cancelRestore()
	if err != nil {
		logger.Warn("startup restore incomplete",
			slog.Int("restored", len(summary.Restored)),
			slog.Int("failed", len(summary.Failed)),
			slog.Any("error", err))
	} else if summary.Requested > 0 {
		logger.Info("startup restore finished", slog.Int("restored", len(summary.Restored)))
	}

	sess := &session.Session{
		Engine: engine,
		Materializer: &result.Materializer{
			DisplayLimit: cfg.Display.Limit,
			LargeRows:    cfg.Display.LargeRows,
			DangerRows:   cfg.Display.DangerRows,
		},
		Logger: logger,
	}
	defer sess.Close()
	sess.Classifier = &classify.Classifier{
		Engine:      engine,
		Sequence:    &classify.Sequence{},
		Generations: session.GenerationSource{Session: sess},
		Logger:      logger,
	}

	var translator nl2sql.Translator
	if cfg.AI.TranslateEnabled {
		translator, err = nl2sql.NewOpenAITranslator(nl2sql.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize query translator", slog.Any("error", err))
			os.Exit(1)
		}
	}

	deps := api.Dependencies{
		Logger:      logger,
		Session:     sess,
		Engine:      engine,
		Persistence: store,
		Bundler:     &archive.Bundler{Engine: engine, Logger: logger},
		Translator:  translator,
		Readiness: api.CombineReadinessChecks(
			api.CheckEngine(engine),
			api.CheckKV(kvStore),
		),
		DependencyTimout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Persistence.AutoSaveInterval > 0 {
		autoSaver := &persist.AutoSaver{
			Store:    store,
			Interval: cfg.Persistence.AutoSaveInterval,
			Logger:   logger,
		}
		go func() {
			if err := autoSaver.Run(ctx); err != nil {
				logger.Error("auto save loop stopped", slog.Any("error", err))
			}
		}()
	}

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}

	// One last snapshot so a clean shutdown leaves the store current.
	saveCtx, cancelSave := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelSave()
	if _, err := store.SaveAll(saveCtx, nil); err != nil {
		logger.Warn("shutdown save incomplete", slog.Any("error", err))
	}
}

func openKV(ctx context.Context, cfg config.Config) (kv.Store, func(), error) {
	switch cfg.KV.Backend {
	case config.KVBackendPostgres:
		store, err := pgkv.Open(ctx, pgkv.DBConfig{
			DSN:             cfg.KV.Postgres.DSN,
			MaxOpenConns:    cfg.KV.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.KV.Postgres.MaxIdleConns,
			ConnMaxIdleTime: cfg.KV.Postgres.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.KV.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.KVBackendS3:
		store, err := s3kv.New(ctx, s3kv.Config{
			Endpoint:         cfg.KV.S3.Endpoint,
			Region:           cfg.KV.S3.Region,
			Bucket:           cfg.KV.S3.Bucket,
			AccessKeyID:      cfg.KV.S3.AccessKeyID,
			SecretAccessKey:  cfg.KV.S3.SecretAccessKey,
			UseSSL:           cfg.KV.S3.UseSSL,
			Prefix:           cfg.KV.S3.Prefix,
			AutoCreateBucket: cfg.KV.S3.AutoCreateBucket,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		store, err := sqlitekv.Open(ctx, cfg.KV.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
}
