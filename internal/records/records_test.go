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

package records

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/ai-health-assistant/internal/analysis"
)

func symptomRecord(t *testing.T, userID string, risk analysis.Level) Record {
	t.Helper()
	rec, err := NewRecord(userID, "req-1",
		analysis.SymptomRequest{Symptoms: "chest pain"},
		analysis.SymptomAnalysis{
			Analysis:        "Possible cardiac event.",
			RiskLevel:       risk,
			Recommendations: []string{"Call emergency services"},
			MedicalHelp:     "Now.",
			Confidence:      90,
		},
		analysis.SourceModel)
	require.NoError(t, err)
	return rec
}

func TestNewRecord_Symptom(t *testing.T) {
	rec := symptomRecord(t, "user-1", analysis.LevelCritical)

	_, err := uuid.Parse(rec.ID)
	assert.NoError(t, err)
	assert.Equal(t, analysis.KindSymptom, rec.RecordType)
	assert.Equal(t, "Symptom Analysis", rec.Title)
	assert.Equal(t, analysis.LevelCritical, rec.RiskLevel)
	require.NotNil(t, rec.Confidence)
	assert.Equal(t, 90.0, *rec.Confidence)
	assert.True(t, rec.IsEmergency)
	assert.JSONEq(t, `{"symptoms":"chest pain"}`, string(rec.Input))
}

func TestNewRecord_XRayOmitsImage(t *testing.T) {
	rec, err := NewRecord("user-1", "req-2",
		analysis.XRayRequest{ImageBase64: "aGVsbG8=", MimeType: "image/png", BodyPart: analysis.BodyPartSpine},
		analysis.XRayAnalysis{Confidence: 60, UrgencyLevel: analysis.LevelLow},
		analysis.SourceFallback)
	require.NoError(t, err)

	assert.Equal(t, "X-Ray Analysis (spine)", rec.Title)
	assert.NotContains(t, string(rec.Input), "aGVsbG8=")
	assert.Equal(t, analysis.LevelLow, rec.UrgencyLevel)
	assert.False(t, rec.IsEmergency)
	assert.Equal(t, analysis.SourceFallback, rec.Source)
}

func TestNewRecord_SchemeTitles(t *testing.T) {
	scheme, err := NewRecord("u", "r", analysis.SchemeQueryRequest{SchemeID: "jan-aushadhi", Query: "q"},
		analysis.SchemeAnswer{Response: "a"}, analysis.SourceModel)
	require.NoError(t, err)
	assert.Equal(t, "Scheme Query: jan-aushadhi", scheme.Title)
	assert.Nil(t, scheme.Confidence)

	general, err := NewRecord("u", "r", analysis.SchemeQueryRequest{Query: "q"},
		analysis.SchemeAnswer{Response: "a"}, analysis.SourceModel)
	require.NoError(t, err)
	assert.Equal(t, "Chatbot Query", general.Title)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "records.jsonl")
	store, err := NewFileStore(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Save(ctx, symptomRecord(t, "user-1", analysis.LevelLow)))
	require.NoError(t, store.Save(ctx, symptomRecord(t, "user-2", analysis.LevelHigh)))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = file.Close() }()

	var lines []Record
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		lines = append(lines, rec)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "user-2", lines[1].UserID)
	assert.Equal(t, analysis.LevelHigh, lines[1].RiskLevel)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "records.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))

	older := symptomRecord(t, "user-1", analysis.LevelLow)
	older.CreatedAt = time.Now().Add(-time.Hour).UTC()
	newer := symptomRecord(t, "user-1", analysis.LevelCritical)
	other := symptomRecord(t, "user-2", analysis.LevelModerate)

	for _, rec := range []Record{older, newer, other} {
		require.NoError(t, store.Save(ctx, rec))
	}

	got, err := store.Recent(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.ID, got[0].ID)
	assert.True(t, got[0].IsEmergency)
	assert.Equal(t, analysis.LevelCritical, got[0].RiskLevel)
	require.NotNil(t, got[0].Confidence)
	assert.Equal(t, 90.0, *got[0].Confidence)
	assert.JSONEq(t, string(newer.Analysis), string(got[0].Analysis))

	assert.Error(t, store.Save(ctx, newer), "duplicate id must fail")
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	store, err := NewStore(ctx, Config{StorageType: StorageTypeNone}, logger)
	require.NoError(t, err)
	assert.Nil(t, store)

	store, err = NewStore(ctx, Config{StorageType: StorageTypeFile, FilePath: filepath.Join(t.TempDir(), "r.jsonl")}, logger)
	require.NoError(t, err)
	assert.Equal(t, StorageTypeFile, store.Name())

	_, err = NewStore(ctx, Config{StorageType: "redis"}, logger)
	assert.Error(t, err)

	_, err = NewStore(ctx, Config{StorageType: StorageTypeMongo}, logger)
	assert.Error(t, err, "mongo without a uri must fail")
}

func TestToMongoRecord(t *testing.T) {
	rec := symptomRecord(t, "user-1", analysis.LevelLow)
	doc, err := toMongoRecord(rec)
	require.NoError(t, err)

	assert.Equal(t, "chest pain", doc.Input["symptoms"])
	assert.Equal(t, "low", doc.Analysis["riskLevel"])
}

// memoryStore records saves and can be made to block or fail
type memoryStore struct {
	mu      sync.Mutex
	saved   []Record
	release chan struct{}
	err     error
	closed  bool
}

func (s *memoryStore) Name() string { return "memory" }

func (s *memoryStore) Save(_ context.Context, rec Record) error {
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, rec)
	return nil
}

func (s *memoryStore) Ping(context.Context) error { return nil }

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func TestDispatcher_DrainsOnClose(t *testing.T) {
	store := &memoryStore{}
	d := NewDispatcher(store, 10, time.Second, zaptest.NewLogger(t))

	for i := 0; i < 5; i++ {
		assert.True(t, d.Publish(symptomRecord(t, "user", analysis.LevelLow)))
	}
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, 5, store.count())
	assert.True(t, store.closed)
	assert.False(t, d.Publish(symptomRecord(t, "user", analysis.LevelLow)))
}

func TestDispatcher_PublishNeverBlocks(t *testing.T) {
	store := &memoryStore{release: make(chan struct{})}
	d := NewDispatcher(store, 1, time.Second, zaptest.NewLogger(t))

	rec := symptomRecord(t, "user", analysis.LevelLow)
	accepted := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			if d.Publish(rec) {
				accepted++
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a stalled store")
	}
	// one record may be held by the writer and one in the queue
	assert.LessOrEqual(t, accepted, 2)
	assert.GreaterOrEqual(t, accepted, 1)

	close(store.release)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, accepted, store.count())
}

func TestDispatcher_StoreErrorIsSwallowed(t *testing.T) {
	store := &memoryStore{err: errors.New("disk full")}
	d := NewDispatcher(store, 4, time.Second, zaptest.NewLogger(t))

	assert.True(t, d.Publish(symptomRecord(t, "user", analysis.LevelLow)))
	require.NoError(t, d.Close(context.Background()))
	assert.Zero(t, store.count())
}
