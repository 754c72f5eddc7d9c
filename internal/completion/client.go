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

// Package completion wraps the outbound call to the OpenAI-compatible
// completion service.
package completion

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/your-org/ai-health-assistant/internal/analysis"
	"github.com/your-org/ai-health-assistant/internal/prompt"
	"github.com/your-org/ai-health-assistant/internal/resilience"
)

const (
	// DefaultBaseURL is Gemini's OpenAI-compatible endpoint
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	// DefaultChatModel serves short conversational replies
	DefaultChatModel = "gemini-2.0-flash"
	// DefaultAnalysisModel serves structured analyses and scheme answers
	DefaultAnalysisModel = "gemini-1.5-flash"
	// DefaultTimeout bounds a single completion round-trip
	DefaultTimeout = 30 * time.Second
	// maxBodyLog caps how much of an upstream error body is kept
	maxBodyLog = 512
)

// ErrMissingCredential is returned when no API key is configured
var ErrMissingCredential = errors.New("completion service credential is not configured")

// Config holds completion service settings
type Config struct {
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	ChatModel     string        `mapstructure:"chat_model"`
	AnalysisModel string        `mapstructure:"analysis_model"`
	VisionModel   string        `mapstructure:"vision_model"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// Configured reports whether a credential is present
func (c Config) Configured() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.ChatModel == "" {
		c.ChatModel = DefaultChatModel
	}
	if c.AnalysisModel == "" {
		c.AnalysisModel = DefaultAnalysisModel
	}
	if c.VisionModel == "" {
		c.VisionModel = c.AnalysisModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Result is the raw text returned by the model
type Result struct {
	Text         string
	Model        string
	FinishReason string
	Usage        openai.Usage
	Latency      time.Duration
}

// Client issues one blocking completion call per Invoke. It never retries.
type Client struct {
	client  *openai.Client
	config  Config
	breaker *resilience.CircuitBreaker
	logger  *zap.Logger
}

// NewClient creates a client for the configured endpoint. A missing key is
// not an error here; Configured reports it and Invoke refuses to dial.
func NewClient(cfg Config, logger *zap.Logger, breaker *resilience.CircuitBreaker) *Client {
	cfg = cfg.withDefaults()

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return NewClientWithConfig(cfg, clientConfig, logger, breaker)
}

// NewClientWithConfig creates a client from an explicit go-openai config
func NewClientWithConfig(cfg Config, clientConfig openai.ClientConfig, logger *zap.Logger, breaker *resilience.CircuitBreaker) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	logger.Info("Completion client initialized",
		zap.String("base_url", clientConfig.BaseURL),
		zap.String("chat_model", cfg.ChatModel),
		zap.String("analysis_model", cfg.AnalysisModel),
		zap.Duration("timeout", cfg.Timeout),
		zap.Bool("configured", cfg.Configured()))

	return &Client{
		client:  openai.NewClientWithConfig(clientConfig),
		config:  cfg,
		breaker: breaker,
		logger:  logger,
	}
}

// Configured reports whether the client holds a credential
func (c *Client) Configured() bool {
	return c.config.Configured()
}

// Breaker returns the circuit breaker guarding the client, if any
func (c *Client) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}

// Invoke sends the payload and returns the model text. Every error is a
// *TransportFailure.
func (c *Client) Invoke(ctx context.Context, payload prompt.Payload, requestID string) (*Result, error) {
	if !c.Configured() {
		return nil, &TransportFailure{Cause: CauseUnconfigured, Err: ErrMissingCredential}
	}

	var result *Result
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = c.invoke(ctx, payload, requestID)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitBreakerOpen) {
		return nil, &TransportFailure{Cause: CauseCircuitOpen, Err: err}
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) invoke(ctx context.Context, payload prompt.Payload, requestID string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req := c.buildRequest(payload, requestID)

	c.logger.Debug("Sending completion request",
		zap.String("request_id", requestID),
		zap.String("kind", string(payload.Kind)),
		zap.String("model", req.Model),
		zap.Bool("multimodal", payload.Multimodal()))

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	latency := time.Since(start)
	if err != nil {
		failure := classifyError(ctx, err)
		c.logger.Warn("Completion request failed",
			zap.String("request_id", requestID),
			zap.String("cause", string(failure.Cause)),
			zap.Int("status_code", failure.StatusCode),
			zap.String("body", failure.Body),
			zap.Duration("latency", latency),
			zap.Error(err))
		return nil, failure
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		c.logger.Warn("Completion returned no content",
			zap.String("request_id", requestID),
			zap.Int("choices", len(resp.Choices)))
		return nil, &TransportFailure{Cause: CauseEmptyResponse, Err: errors.New("no content in completion response")}
	}

	choice := resp.Choices[0]
	c.logger.Debug("Completion request completed",
		zap.String("request_id", requestID),
		zap.String("finish_reason", string(choice.FinishReason)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("latency", latency))

	return &Result{
		Text:         choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Usage:        resp.Usage,
		Latency:      latency,
	}, nil
}

func (c *Client) buildRequest(payload prompt.Payload, requestID string) openai.ChatCompletionRequest {
	var messages []openai.ChatCompletionMessage
	if payload.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: payload.System,
		})
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if payload.Multimodal() {
		user.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: payload.User},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    payload.Image.DataURL(),
					Detail: openai.ImageURLDetailAuto,
				},
			},
		}
	} else {
		user.Content = payload.User
	}
	messages = append(messages, user)

	return openai.ChatCompletionRequest{
		Model:       c.modelFor(payload),
		Messages:    messages,
		MaxTokens:   payload.Sampling.MaxTokens,
		Temperature: payload.Sampling.Temperature,
		TopP:        payload.Sampling.TopP,
		User:        requestID,
	}
}

func (c *Client) modelFor(payload prompt.Payload) string {
	switch {
	case payload.Multimodal():
		return c.config.VisionModel
	case payload.Kind == analysis.KindChat:
		return c.config.ChatModel
	default:
		return c.config.AnalysisModel
	}
}

// classifyError maps go-openai and transport errors onto failure causes
func classifyError(ctx context.Context, err error) *TransportFailure {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &TransportFailure{
			Cause:      CauseHTTPStatus,
			StatusCode: apiErr.HTTPStatusCode,
			Body:       truncate(apiErr.Message, maxBodyLog),
			Err:        err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := ""
		if reqErr.Err != nil {
			body = truncate(reqErr.Err.Error(), maxBodyLog)
		}
		return &TransportFailure{
			Cause:      CauseHTTPStatus,
			StatusCode: reqErr.HTTPStatusCode,
			Body:       body,
			Err:        err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TransportFailure{Cause: CauseTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransportFailure{Cause: CauseTimeout, Err: err}
	}

	return &TransportFailure{Cause: CauseNetwork, Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// IsUpstreamFailure reports whether err should count against the circuit
// breaker: network errors, timeouts, 429 and 5xx. Other 4xx statuses are
// caused by the request itself, and an empty response still means the
// service answered. Caller cancellation never counts.
func IsUpstreamFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	failure, ok := AsTransportFailure(err)
	if !ok {
		return true
	}
	switch failure.Cause {
	case CauseNetwork, CauseTimeout:
		return true
	case CauseHTTPStatus:
		return failure.StatusCode == http.StatusTooManyRequests ||
			failure.StatusCode >= http.StatusInternalServerError ||
			failure.StatusCode == 0
	default:
		return false
	}
}
