// Copyright 2024 AI Health Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/your-org/ai-health-assistant/internal/completion"
	"github.com/your-org/ai-health-assistant/internal/config"
	"github.com/your-org/ai-health-assistant/internal/extract"
	"github.com/your-org/ai-health-assistant/internal/health"
	"github.com/your-org/ai-health-assistant/internal/pipeline"
	"github.com/your-org/ai-health-assistant/internal/prompt"
	"github.com/your-org/ai-health-assistant/internal/records"
	"github.com/your-org/ai-health-assistant/internal/resilience"
	"github.com/your-org/ai-health-assistant/internal/server"
)

// app is the wired service
type app struct {
	server     *server.Server
	dispatcher *records.Dispatcher
	breaker    *resilience.CircuitBreaker
	logger     *zap.Logger
}

func runServe(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Load configuration first to get logging settings
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, level, err := initializeLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	masked := cfg.MaskSensitiveValues()
	logger.Info("Configuration loaded successfully",
		zap.String("version", version),
		zap.Int("port", masked.Server.Port),
		zap.String("completion_base_url", masked.Completion.BaseURL),
		zap.String("completion_api_key", masked.Completion.APIKey),
		zap.String("chat_model", masked.Completion.ChatModel),
		zap.String("analysis_model", masked.Completion.AnalysisModel),
		zap.String("records_storage", masked.Records.StorageType),
		zap.String("log_level", masked.Logging.Level))

	if !cfg.Completion.Configured() {
		logger.Warn("GEMINI_API_KEY is not set; AI endpoints will answer 503")
	}

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if err := config.WatchConfig(configPath, logger, func(updated *config.Config) {
		level.SetLevel(parseLevel(updated.Logging.Level))
		logger.Info("Log level updated", zap.String("level", updated.Logging.Level))
	}); err != nil {
		logger.Debug("Config hot reload disabled", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			a.shutdown(cfg)
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	a.shutdown(cfg)
	return nil
}

// buildApp wires every component from configuration
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	gin.SetMode(cfg.Server.Mode)

	var breaker *resilience.CircuitBreaker
	if cfg.Breaker.Enabled {
		breakerConfig := resilience.DefaultCircuitBreakerConfig("completion")
		breakerConfig.MaxFailures = cfg.Breaker.MaxFailures
		breakerConfig.ResetTimeout = cfg.Breaker.ResetTimeout
		breakerConfig.IsFailureFunc = completion.IsUpstreamFailure
		breaker = resilience.NewCircuitBreaker(breakerConfig, logger)
	}

	client := completion.NewClient(cfg.Completion, logger, breaker)

	schemes, err := prompt.LoadSchemes(cfg.Prompt.SchemesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load scheme table: %w", err)
	}

	manager := health.NewManager(serviceName, version, logger)
	if cfg.Server.HealthTimeout > 0 {
		manager.SetTimeout(cfg.Server.HealthTimeout)
	}
	manager.AddChecker("completion", health.CompletionChecker(client.Configured, func() string {
		return client.Breaker().GetState().String()
	}))

	// Persistence is best effort; a broken store never blocks startup
	var publisher records.Publisher
	var dispatcher *records.Dispatcher
	store, err := records.NewStore(ctx, cfg.Records, logger)
	switch {
	case err != nil:
		logger.Error("Record store unavailable, records disabled", zap.Error(err))
	case store == nil:
		logger.Info("Record storage disabled")
	default:
		dispatcher = records.NewDispatcher(store, cfg.Records.QueueSize, cfg.Records.WriteTimeout, logger)
		publisher = dispatcher
		manager.AddChecker("records", health.StoreChecker(store.Name(), store.Ping))
	}

	p := pipeline.New(
		prompt.NewBuilder(cfg.Prompt.Builder(), schemes),
		client,
		extract.New(cfg.Sanitize.Chat),
		publisher,
		logger,
	)

	srv := server.New(server.Options{
		Server:    cfg.Server,
		RateLimit: cfg.RateLimit,
		Pipeline:  p,
		Health:    manager,
		Logger:    logger,
	})

	return &app{server: srv, dispatcher: dispatcher, breaker: breaker, logger: logger}, nil
}

func (a *app) shutdown(cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(ctx); err != nil {
			a.logger.Error("Record dispatcher shutdown failed", zap.Error(err))
		}
	}
	a.logger.Info("Shutdown complete", zap.Any("completion_breaker", a.breaker.GetStats()))
}
