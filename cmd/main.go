package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"kotonoha/internal/backends"
	"kotonoha/internal/config"
	"kotonoha/internal/cost"
	"kotonoha/internal/engine"
	"kotonoha/internal/rag"
	"kotonoha/internal/scenario"
	"kotonoha/internal/storage"
	"kotonoha/internal/web"
)

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func main() {
	configPath := "configs/config.yaml"
	if v := os.Getenv("KOTONOHA_CONFIG"); v != "" {
		configPath = v
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Cost ledger: MySQL when reachable, in-memory otherwise
	var ledger cost.Ledger
	mysqlLedger, err := storage.NewMySQLLedger(cfg.Database.MySQL)
	if err != nil {
		logger.Warn("mysql unavailable, using in-memory cost ledger", zap.Error(err))
		ledger = cost.NewMemoryLedger()
	} else {
		defer mysqlLedger.Close()
		logger.Info("mysql connected")
		ledger = mysqlLedger
	}

	// Save slots: Redis when reachable, in-memory otherwise
	var saves storage.KV
	redisStore, err := storage.NewRedisStore(cfg.Database.Redis)
	if err != nil {
		logger.Warn("redis unavailable, using in-memory save store", zap.Error(err))
		saves = storage.NewMemoryKV()
	} else {
		defer redisStore.Close()
		logger.Info("redis connected")
		saves = redisStore
	}

	governor := cost.NewGovernor(ledger, cfg.Cost.MonthlyLimitUSD, cfg.Cost.RetentionMonths, logger)

	// Long-term memory store. Without an embedding key recall is disabled
	// and the session degrades to the short-term window only.
	var embedder rag.Embedder
	if cfg.AI.Embedding.APIKey != "" {
		openaiEmbedder, err := rag.NewOpenAIEmbedder(cfg.AI.Embedding)
		if err != nil {
			logger.Warn("embedding client unavailable", zap.Error(err))
		} else {
			embedder = openaiEmbedder
		}
	} else {
		logger.Warn("no embedding API key, long-term memory recall disabled")
	}
	memory := rag.NewMemoryStore(embedder, cfg.Memory.MaxVectors, cfg.Memory.SimilarityThreshold, logger)

	trigger := scenario.LoadFile(cfg.Game.ScenarioFile, logger)
	registry := backends.NewRegistry(cfg.AI, logger)

	hub := web.NewEventHub(logger)
	go hub.Run()

	session := engine.NewSession(engine.Options{
		Registry: registry,
		Governor: governor,
		Memory:   memory,
		Trigger:  trigger,
		Saves:    saves,
		Notifier: hub,
		Settings: engine.Settings{
			Backend:        cfg.AI.Backend,
			ShortTermTurns: cfg.Game.ShortTermTurns,
			SearchLimit:    cfg.Memory.SearchLimit,
		},
		RevealInterval: cfg.Game.RevealInterval,
		Logger:         logger,
	})

	handlers := web.NewHandlers(session, governor, hub, logger)
	router := web.NewRouter(handlers, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
}
