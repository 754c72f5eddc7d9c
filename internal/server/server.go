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

// Package server exposes the analysis pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/your-org/ai-health-assistant/internal/config"
	"github.com/your-org/ai-health-assistant/internal/health"
	"github.com/your-org/ai-health-assistant/internal/metrics"
	"github.com/your-org/ai-health-assistant/internal/pipeline"
	"github.com/your-org/ai-health-assistant/internal/resilience"
)

// Options wires a Server
type Options struct {
	Server    config.ServerConfig
	RateLimit config.RateLimitConfig
	Pipeline  *pipeline.Pipeline
	Health    *health.Manager
	Logger    *zap.Logger
}

// Server owns the gin router and the HTTP listener
type Server struct {
	config       config.ServerConfig
	pipeline     *pipeline.Pipeline
	health       *health.Manager
	limiter      *IPRateLimiter
	errorHandler *resilience.ErrorHandler
	logger       *zap.Logger
	router       *gin.Engine
	httpServer   *http.Server
}

// New builds the router. Call gin.SetMode before New.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:       opts.Server,
		pipeline:     opts.Pipeline,
		health:       opts.Health,
		errorHandler: resilience.NewErrorHandler(logger),
		logger:       logger,
	}
	if opts.RateLimit.Enabled {
		s.limiter = NewIPRateLimiter(opts.RateLimit.RequestsPerSecond, opts.RateLimit.Burst)
	}
	s.router = s.setupRouter()
	s.httpServer = &http.Server{
		Addr:         opts.Server.Address(),
		Handler:      s.router,
		ReadTimeout:  opts.Server.ReadTimeout,
		WriteTimeout: opts.Server.WriteTimeout,
	}
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	// Only the socket peer is trusted unless proxies are configured, so
	// X-Forwarded-For cannot pick the rate-limit key.
	if err := router.SetTrustedProxies(s.config.TrustedProxies); err != nil {
		s.logger.Error("Invalid trusted proxies, trusting none", zap.Error(err))
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(
		gin.Recovery(),
		requestIDMiddleware(),
		accessLog(s.logger),
		metrics.GinMiddleware(),
		limitBodySize(s.config.MaxBodyBytes),
		cors.New(corsConfig(s.config.AllowedOrigins)),
	)

	if s.health != nil {
		router.GET("/health", s.health.GinHandler())
	}
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	if s.limiter != nil {
		api.Use(s.limiter.Middleware(s.errorHandler, s.logger))
	}
	api.POST("/chat", s.handleChat)
	api.POST("/analyze-symptoms", s.handleSymptoms)
	api.POST("/analyze-xray", s.handleXRay)
	api.POST("/scheme-query", s.handleSchemeQuery)
	api.POST("/chatbot-query", s.handleChatbotQuery)

	if s.config.StaticDir != "" {
		router.NoRoute(gin.WrapH(http.FileServer(http.Dir(s.config.StaticDir))))
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", HeaderRequestID},
		ExposeHeaders: []string{HeaderRequestID, HeaderAnalysisSource},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// Start listens until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
