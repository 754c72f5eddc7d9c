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

package pipeline

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/ai-health-assistant/internal/analysis"
	"github.com/your-org/ai-health-assistant/internal/completion"
	"github.com/your-org/ai-health-assistant/internal/extract"
	"github.com/your-org/ai-health-assistant/internal/fallback"
	"github.com/your-org/ai-health-assistant/internal/prompt"
	"github.com/your-org/ai-health-assistant/internal/records"
	"github.com/your-org/ai-health-assistant/internal/resilience"
	"github.com/your-org/ai-health-assistant/internal/sanitize"
)

// fakeCompleter returns a canned text or error and counts calls
type fakeCompleter struct {
	configured bool
	text       string
	err        error

	mu       sync.Mutex
	calls    int
	payloads []prompt.Payload
}

func (f *fakeCompleter) Configured() bool { return f.configured }

func (f *fakeCompleter) Invoke(_ context.Context, payload prompt.Payload, _ string) (*completion.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.payloads = append(f.payloads, payload)
	if f.err != nil {
		return nil, f.err
	}
	return &completion.Result{Text: f.text}, nil
}

// capturePublisher keeps published records
type capturePublisher struct {
	mu      sync.Mutex
	records []records.Record
}

func (c *capturePublisher) Publish(rec records.Record) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return true
}

func newTestPipeline(t *testing.T, completer Completer, publisher records.Publisher) *Pipeline {
	t.Helper()
	return New(
		prompt.NewBuilder(prompt.DefaultConfig(), nil),
		completer,
		extract.New(sanitize.ChatLimits),
		publisher,
		zaptest.NewLogger(t),
	)
}

const modelSymptomJSON = `{"analysis":"Likely tension headache.","riskLevel":"low","recommendations":["rest"],"medicalHelp":"If it worsens.","confidence":80}`

func TestRun_SymptomFromModel(t *testing.T) {
	completer := &fakeCompleter{configured: true, text: modelSymptomJSON}
	p := newTestPipeline(t, completer, nil)

	out, err := p.Run(context.Background(), Input{
		Request:   analysis.SymptomRequest{Symptoms: "mild headache for 2 hours"},
		RequestID: "req-1",
	})
	require.NoError(t, err)

	assert.Equal(t, analysis.SourceModel, out.Source)
	assert.Empty(t, out.FailureReason)
	assert.Equal(t, StageResponded, out.Stage)
	assert.Equal(t, []Stage{StageReceived, StagePromptBuilt, StageDispatched, StageExtracted, StageResponded}, out.Trace)

	symptom := out.Analysis.(analysis.SymptomAnalysis)
	assert.Equal(t, analysis.LevelLow, symptom.RiskLevel)
	assert.Equal(t, 80.0, symptom.Confidence)
	assert.Equal(t, prompt.SymptomSchema, completer.payloads[0].ExpectedSchema)
}

func TestRun_NoJSONEqualsFallback(t *testing.T) {
	tests := []struct {
		name string
		req  analysis.Request
	}{
		{"symptom", analysis.SymptomRequest{Symptoms: "mild headache for 2 hours"}},
		{"xray", analysis.XRayRequest{ImageBase64: "aGVsbG8=", MimeType: "image/png"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &fakeCompleter{configured: true, text: "You should see a doctor soon."}
			out, err := newTestPipeline(t, completer, nil).Run(context.Background(), Input{Request: tt.req})
			require.NoError(t, err)

			assert.Equal(t, analysis.SourceFallback, out.Source)
			assert.Equal(t, "extraction:no_json_found", out.FailureReason)
			assert.Equal(t, fallback.For(tt.req), out.Analysis)
			assert.Contains(t, out.Trace, StageFailed)
		})
	}
}

func TestRun_TransportFailureFallsBack(t *testing.T) {
	completer := &fakeCompleter{
		configured: true,
		err:        &completion.TransportFailure{Cause: completion.CauseHTTPStatus, StatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")},
	}
	out, err := newTestPipeline(t, completer, nil).Run(context.Background(), Input{
		Request: analysis.ChatRequest{Message: "hello"},
	})
	require.NoError(t, err)

	assert.Equal(t, analysis.ChatReply{Reply: fallback.ChatReply}, out.Analysis)
	assert.Equal(t, "transport:http_status", out.FailureReason)
}

func TestRun_MissingFieldDiscardsPartialOutput(t *testing.T) {
	completer := &fakeCompleter{configured: true, text: `{"analysis":"partial","riskLevel":"high"}`}
	out, err := newTestPipeline(t, completer, nil).Run(context.Background(), Input{
		Request: analysis.SymptomRequest{Symptoms: "cough"},
	})
	require.NoError(t, err)

	symptom := out.Analysis.(analysis.SymptomAnalysis)
	assert.Equal(t, analysis.LevelModerate, symptom.RiskLevel)
	assert.NotContains(t, symptom.Analysis, "partial")
	assert.Equal(t, "extraction:missing_field", out.FailureReason)
}

func TestRun_ChatIsSanitized(t *testing.T) {
	completer := &fakeCompleter{configured: true, text: "**Rest** and _hydrate_.\n- Avoid screens. See a doctor if it persists. Take care."}
	out, err := newTestPipeline(t, completer, nil).Run(context.Background(), Input{
		Request: analysis.ChatRequest{Message: "I have a headache"},
	})
	require.NoError(t, err)

	assert.Equal(t, analysis.ChatReply{Reply: "Rest and hydrate. Avoid screens. See a doctor if it persists."}, out.Analysis)
}

func TestRun_SchemeQueryFreeText(t *testing.T) {
	completer := &fakeCompleter{configured: true, text: "It covers hospitalization up to 5 lakh."}
	out, err := newTestPipeline(t, completer, nil).Run(context.Background(), Input{
		Request: analysis.SchemeQueryRequest{SchemeID: "ayushman-bharat", Query: "What is covered?"},
	})
	require.NoError(t, err)

	assert.Equal(t, analysis.SchemeAnswer{Response: "It covers hospitalization up to 5 lakh."}, out.Analysis)
	assert.Contains(t, completer.payloads[0].User, "Ayushman Bharat")
}

func TestRun_MissingCredential(t *testing.T) {
	completer := &fakeCompleter{configured: false}
	out, err := newTestPipeline(t, completer, nil).Run(context.Background(), Input{
		Request: analysis.ChatRequest{Message: "hello"},
	})
	require.Error(t, err)
	assert.Nil(t, out)

	var serviceErr *resilience.ServiceError
	require.True(t, resilience.AsServiceError(err, &serviceErr))
	assert.Equal(t, http.StatusServiceUnavailable, serviceErr.StatusCode)
	assert.ErrorIs(t, err, completion.ErrMissingCredential)
	assert.Zero(t, completer.calls)
}

func TestRun_InvalidRequest(t *testing.T) {
	completer := &fakeCompleter{configured: true}
	_, err := newTestPipeline(t, completer, nil).Run(context.Background(), Input{
		Request: analysis.ChatRequest{Message: "   "},
	})

	var serviceErr *resilience.ServiceError
	require.True(t, resilience.AsServiceError(err, &serviceErr))
	assert.Equal(t, http.StatusBadRequest, serviceErr.StatusCode)
	assert.Equal(t, "message is required", serviceErr.Message)
	assert.Zero(t, completer.calls)
}

func TestRun_PublishesRecordForUser(t *testing.T) {
	publisher := &capturePublisher{}
	completer := &fakeCompleter{configured: true, text: modelSymptomJSON}
	p := newTestPipeline(t, completer, publisher)

	_, err := p.Run(context.Background(), Input{
		Request:   analysis.SymptomRequest{Symptoms: "headache"},
		UserID:    "user-42",
		RequestID: "req-9",
	})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), Input{Request: analysis.SymptomRequest{Symptoms: "headache"}})
	require.NoError(t, err)

	require.Len(t, publisher.records, 1)
	rec := publisher.records[0]
	assert.Equal(t, "user-42", rec.UserID)
	assert.Equal(t, "req-9", rec.RequestID)
	assert.Equal(t, analysis.KindSymptom, rec.RecordType)
	assert.Equal(t, analysis.SourceModel, rec.Source)
}
