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

// Package pipeline runs one analysis request end to end: build the prompt,
// call the completion service, extract a structured answer and fall back to
// a static one when anything after validation goes wrong.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/ai-health-assistant/internal/analysis"
	"github.com/your-org/ai-health-assistant/internal/completion"
	"github.com/your-org/ai-health-assistant/internal/extract"
	"github.com/your-org/ai-health-assistant/internal/fallback"
	"github.com/your-org/ai-health-assistant/internal/metrics"
	"github.com/your-org/ai-health-assistant/internal/prompt"
	"github.com/your-org/ai-health-assistant/internal/records"
	"github.com/your-org/ai-health-assistant/internal/resilience"
)

// Stage is a step of a pipeline run
type Stage string

const (
	StageReceived    Stage = "received"
	StagePromptBuilt Stage = "prompt_built"
	StageDispatched  Stage = "dispatched"
	StageExtracted   Stage = "extracted"
	StageFailed      Stage = "failed"
	StageResponded   Stage = "responded"
)

// Completer is the completion service as seen by the pipeline
type Completer interface {
	Configured() bool
	Invoke(ctx context.Context, payload prompt.Payload, requestID string) (*completion.Result, error)
}

// Input is one request to analyze
type Input struct {
	Request   analysis.Request
	UserID    string
	RequestID string
}

// Outcome is the answer served for an Input
type Outcome struct {
	Analysis      analysis.StructuredAnalysis
	Source        analysis.Source
	Stage         Stage
	Trace         []Stage
	FailureReason string
}

func (o *Outcome) advance(stage Stage) {
	o.Stage = stage
	o.Trace = append(o.Trace, stage)
}

// Pipeline is stateless across runs and safe for concurrent use
type Pipeline struct {
	builder   *prompt.Builder
	completer Completer
	extractor *extract.Extractor
	publisher records.Publisher
	logger    *zap.Logger
}

// New creates a pipeline. publisher may be nil to disable records.
func New(builder *prompt.Builder, completer Completer, extractor *extract.Extractor, publisher records.Publisher, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		builder:   builder,
		completer: completer,
		extractor: extractor,
		publisher: publisher,
		logger:    logger,
	}
}

// Run processes one request. The only errors are a *resilience.ServiceError
// for invalid input (400) or a missing credential (503); every failure after
// dispatch is absorbed into a fallback answer.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Outcome, error) {
	kind := in.Request.Kind()
	out := &Outcome{}
	out.advance(StageReceived)

	if err := in.Request.Validate(); err != nil {
		return nil, resilience.NewBadRequestError(validationMessage(err), err)
	}

	if !p.completer.Configured() {
		p.logger.Warn("Completion service not configured",
			zap.String("request_id", in.RequestID),
			zap.String("kind", string(kind)))
		metrics.RecordAnalysis(string(kind), "none", string(completion.CauseUnconfigured))
		return nil, resilience.NewConfigurationError(
			"AI service is not configured. Please set GEMINI_API_KEY.", completion.ErrMissingCredential)
	}

	payload, err := p.builder.Build(in.Request)
	if err != nil {
		return nil, resilience.NewInternalError("Failed to prepare the request.", err)
	}
	out.advance(StagePromptBuilt)

	out.advance(StageDispatched)
	start := time.Now()
	result, err := p.completer.Invoke(ctx, payload, in.RequestID)
	if err != nil {
		metrics.RecordCompletion(string(kind), completionOutcome(err), time.Since(start))
		p.degrade(out, in, "transport:"+completionOutcome(err), err)
	} else {
		metrics.RecordCompletion(string(kind), "ok", time.Since(start))
		structured, err := p.extractor.Extract(result.Text, kind, payload.ExpectedSchema)
		if err != nil {
			p.degrade(out, in, "extraction:"+string(extract.ReasonOf(err)), err)
		} else {
			out.Analysis = structured
			out.Source = analysis.SourceModel
			out.advance(StageExtracted)
		}
	}

	out.advance(StageResponded)
	metrics.RecordAnalysis(string(kind), string(out.Source), out.FailureReason)

	p.logger.Info("Analysis completed",
		zap.String("request_id", in.RequestID),
		zap.String("kind", string(kind)),
		zap.String("source", string(out.Source)),
		zap.String("failure_reason", out.FailureReason))

	p.publish(in, out)
	return out, nil
}

func (p *Pipeline) degrade(out *Outcome, in Input, reason string, err error) {
	p.logger.Warn("Serving fallback analysis",
		zap.String("request_id", in.RequestID),
		zap.String("kind", string(in.Request.Kind())),
		zap.String("reason", reason),
		zap.Error(err))

	out.Analysis = fallback.For(in.Request)
	out.Source = analysis.SourceFallback
	out.FailureReason = reason
	out.advance(StageFailed)
}

// publish hands a record to the dispatcher. It runs after the answer is
// fixed and cannot change it.
func (p *Pipeline) publish(in Input, out *Outcome) {
	if p.publisher == nil || strings.TrimSpace(in.UserID) == "" {
		return
	}

	rec, err := records.NewRecord(in.UserID, in.RequestID, in.Request, out.Analysis, out.Source)
	if err != nil {
		p.logger.Error("Failed to build record",
			zap.String("request_id", in.RequestID),
			zap.Error(err))
		return
	}
	p.publisher.Publish(rec)
}

func completionOutcome(err error) string {
	if failure, ok := completion.AsTransportFailure(err); ok {
		return string(failure.Cause)
	}
	return "error"
}

func validationMessage(err error) string {
	msg := err.Error()
	if errors.Is(err, analysis.ErrInvalidRequest) {
		msg = strings.TrimPrefix(msg, fmt.Sprintf("%s: ", analysis.ErrInvalidRequest))
	}
	return msg
}
