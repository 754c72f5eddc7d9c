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

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GinMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	assert.Contains(t, scrape(t), `health_assistant_http_requests_total{method="GET",route="/ping",status="204"}`)
}

func TestPipelineHelpers(t *testing.T) {
	RecordAnalysis("symptom_analysis", "fallback", "")
	RecordCompletion("symptom_analysis", "ok", 0)
	RecordRateLimited()
	RecordWrite("file", "written")
	SetRecordQueueDepth(3)

	body := scrape(t)
	assert.Contains(t, body, `health_assistant_analysis_outcomes_total{kind="symptom_analysis",reason="none",source="fallback"}`)
	assert.Contains(t, body, "health_assistant_completion_duration_seconds")
	assert.Contains(t, body, "health_assistant_rate_limited_total")
	assert.Contains(t, body, `health_assistant_records_total{result="written",store="file"}`)
	assert.Contains(t, body, "health_assistant_record_queue_depth 3")
}
