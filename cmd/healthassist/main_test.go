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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/ai-health-assistant/internal/analysis"
	"github.com/your-org/ai-health-assistant/internal/config"
	"github.com/your-org/ai-health-assistant/internal/records"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := newRootCmd()
	names := make([]string, 0)
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "schemes", "history", "version"}, names)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "ai-health-assistant dev\n", out)
}

func TestSchemesCommand_EmbeddedTable(t *testing.T) {
	out, err := execute(t, "schemes", "--file", "")
	require.NoError(t, err)
	assert.Contains(t, out, "schemes:")
	assert.Contains(t, out, "ayushman-bharat")
}

func TestHistoryCommand_RequiresUser(t *testing.T) {
	_, err := execute(t, "history")
	assert.Error(t, err)
}

func TestPrintHistory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "records.db")
	store, err := records.NewSQLiteStore(dbPath, zaptest.NewLogger(t))
	require.NoError(t, err)

	rec, err := records.NewRecord("user-1", "req-1",
		analysis.SymptomRequest{Symptoms: "chest pain"},
		analysis.SymptomAnalysis{
			Analysis:        "Possible cardiac event.",
			RiskLevel:       analysis.LevelCritical,
			Recommendations: []string{"Call emergency services"},
			MedicalHelp:     "Now.",
			Confidence:      90,
		},
		analysis.SourceModel)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), rec))
	require.NoError(t, store.Close())

	var out bytes.Buffer
	cmd := newHistoryCmd()
	cmd.SetOut(&out)
	require.NoError(t, printHistory(cmd, dbPath, "user-1", 5))

	assert.Contains(t, out.String(), "Symptom Analysis")
	assert.Contains(t, out.String(), "true")
}

func TestRunHistory_RequiresSQLiteStorage(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "records.db")

	for _, storageType := range []string{records.StorageTypeFile, records.StorageTypeMongo, records.StorageTypeNone} {
		t.Run(storageType, func(t *testing.T) {
			var out bytes.Buffer
			cmd := newHistoryCmd()
			cmd.SetOut(&out)

			err := runHistory(cmd, records.Config{StorageType: storageType, DBPath: dbPath}, "user-1", 5)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "sqlite")

			_, statErr := os.Stat(dbPath)
			assert.True(t, os.IsNotExist(statErr))
		})
	}

	var out bytes.Buffer
	cmd := newHistoryCmd()
	cmd.SetOut(&out)
	require.NoError(t, runHistory(cmd, records.Config{StorageType: records.StorageTypeSQLite, DBPath: dbPath}, "user-1", 5))
	assert.Contains(t, out.String(), "CREATED")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("info"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}

func TestInitializeLogger(t *testing.T) {
	cfg := &config.Config{Logging: config.LoggingConfig{Level: "warn", Format: "json", Output: "stdout"}}

	logger, level, err := initializeLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.Equal(t, zapcore.WarnLevel, level.Level())

	level.SetLevel(zapcore.DebugLevel)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 3000, Mode: "test", ShutdownTimeout: time.Second},
		Breaker: config.BreakerConfig{
			Enabled:      true,
			MaxFailures:  3,
			ResetTimeout: time.Second,
		},
		Records: records.Config{StorageType: records.StorageTypeNone},
		Logging: config.LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestBuildApp_Wiring(t *testing.T) {
	a, err := buildApp(context.Background(), testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Nil(t, a.dispatcher)

	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(`{"message":"hi"}`))
	a.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	a.shutdown(testConfig())
}

func TestBuildApp_FileRecords(t *testing.T) {
	cfg := testConfig()
	cfg.Records = records.Config{
		StorageType: records.StorageTypeFile,
		FilePath:    filepath.Join(t.TempDir(), "records.jsonl"),
	}

	a, err := buildApp(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, a.dispatcher)
	a.shutdown(cfg)
}

func TestBuildApp_BadSchemeTable(t *testing.T) {
	cfg := testConfig()
	cfg.Prompt.SchemesPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := buildApp(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}
