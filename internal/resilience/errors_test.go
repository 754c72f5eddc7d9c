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

package resilience

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestServiceError(t *testing.T) {
	internal := errors.New("internal error")
	serviceErr := NewServiceError("user message", ErrorCodeInternalError, http.StatusInternalServerError, internal)

	assert.Equal(t, "user message", serviceErr.Error())
	assert.Equal(t, internal, serviceErr.Unwrap())
	assert.ErrorIs(t, serviceErr, internal)
}

func TestServiceErrorConstructors(t *testing.T) {
	internal := errors.New("internal")

	tests := []struct {
		name         string
		err          *ServiceError
		expectCode   ErrorCode
		expectStatus int
	}{
		{"bad request", NewBadRequestError("bad request", internal), ErrorCodeBadRequest, http.StatusBadRequest},
		{"configuration", NewConfigurationError("not configured", nil), ErrorCodeConfigurationError, http.StatusServiceUnavailable},
		{"too many requests", NewTooManyRequestsError("slow down"), ErrorCodeTooManyRequests, http.StatusTooManyRequests},
		{"internal", NewInternalError("boom", internal), ErrorCodeInternalError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectCode, tt.err.Code)
			assert.Equal(t, tt.expectStatus, tt.err.StatusCode)
		})
	}
}

func TestAsServiceError(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", NewBadRequestError("message is required", nil))

	var serviceErr *ServiceError
	require.True(t, AsServiceError(wrapped, &serviceErr))
	assert.Equal(t, ErrorCodeBadRequest, serviceErr.Code)

	assert.False(t, AsServiceError(nil, &serviceErr))
	assert.False(t, AsServiceError(errors.New("plain"), &serviceErr))
}

func TestWriteErrorResponse(t *testing.T) {
	handler := NewErrorHandler(zaptest.NewLogger(t))

	tests := []struct {
		name         string
		err          error
		expectStatus int
		expectCode   string
		expectError  string
	}{
		{
			name:         "configuration error",
			err:          NewConfigurationError("AI service is not configured", nil),
			expectStatus: http.StatusServiceUnavailable,
			expectCode:   "CONFIGURATION_ERROR",
			expectError:  "AI service is not configured",
		},
		{
			name:         "plain error is hidden",
			err:          errors.New("database password is hunter2"),
			expectStatus: http.StatusInternalServerError,
			expectCode:   "INTERNAL_ERROR",
			expectError:  "An unexpected error occurred. Please try again.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.WriteErrorResponse(rec, tt.err, "req-1")

			assert.Equal(t, tt.expectStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.expectCode, body.Code)
			assert.Equal(t, tt.expectError, body.Error)
			assert.Equal(t, "req-1", body.RequestID)
			assert.False(t, body.Timestamp.IsZero())
		})
	}
}
