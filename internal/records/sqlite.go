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
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/your-org/ai-health-assistant/internal/analysis"
)

const createTableSQL = `
	CREATE TABLE IF NOT EXISTS health_records (
		id TEXT PRIMARY KEY,
		request_id TEXT,
		user_id TEXT NOT NULL,
		record_type TEXT NOT NULL,
		title TEXT NOT NULL,
		input TEXT NOT NULL,
		analysis TEXT NOT NULL,
		risk_level TEXT,
		urgency_level TEXT,
		confidence REAL,
		source TEXT NOT NULL,
		is_emergency INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_health_records_user ON health_records (user_id, created_at);
`

// SQLiteStore writes records to a SQLite database
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens the database and creates the schema
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create records database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// a single writer avoids "database is locked" under concurrent saves
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create health_records table: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Name implements Store
func (s *SQLiteStore) Name() string { return StorageTypeSQLite }

// Save inserts one record
func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	insertSQL := `
		INSERT INTO health_records (id, request_id, user_id, record_type, title, input, analysis,
			risk_level, urgency_level, confidence, source, is_emergency, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var confidence sql.NullFloat64
	if rec.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *rec.Confidence, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, insertSQL,
		rec.ID,
		rec.RequestID,
		rec.UserID,
		string(rec.RecordType),
		rec.Title,
		string(rec.Input),
		string(rec.Analysis),
		nullString(string(rec.RiskLevel)),
		nullString(string(rec.UrgencyLevel)),
		confidence,
		string(rec.Source),
		rec.IsEmergency,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert record into SQLite: %w", err)
	}

	s.logger.Debug("Record written to SQLite",
		zap.String("id", rec.ID),
		zap.String("record_type", string(rec.RecordType)))
	return nil
}

// Recent returns the newest records for a user
func (s *SQLiteStore) Recent(ctx context.Context, userID string, limit int) ([]Record, error) {
	query := `
		SELECT id, request_id, user_id, record_type, title, input, analysis,
			risk_level, urgency_level, confidence, source, is_emergency, created_at
		FROM health_records
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var rec Record
		var recordType, input, output, source string
		var requestID, riskLevel, urgencyLevel sql.NullString
		var confidence sql.NullFloat64

		err := rows.Scan(
			&rec.ID,
			&requestID,
			&rec.UserID,
			&recordType,
			&rec.Title,
			&input,
			&output,
			&riskLevel,
			&urgencyLevel,
			&confidence,
			&source,
			&rec.IsEmergency,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}

		rec.RequestID = requestID.String
		rec.RecordType = analysis.Kind(recordType)
		rec.Input = []byte(input)
		rec.Analysis = []byte(output)
		rec.RiskLevel = analysis.Level(riskLevel.String)
		rec.UrgencyLevel = analysis.Level(urgencyLevel.String)
		rec.Source = analysis.Source(source)
		if confidence.Valid {
			c := confidence.Float64
			rec.Confidence = &c
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate record rows: %w", err)
	}
	return records, nil
}

// Ping implements Store
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
